package metrics

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	log "github.com/sirupsen/logrus"
)

var (
	promNamespace = "credrotate"

	errorTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "last_rotation_error_timestamp_seconds",
		Help:      "The timestamp of the last error while rotating credentials",
	})

	errorCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "rotation_error_count",
		Help:      "Number of errors while rotating credentials",
	})

	successTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "last_rotation_success_timestamp_seconds",
		Help:      "The timestamp of the last successful credential rotation",
	})

	secretExpiration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "time_until_secret_expires",
		Help:      "The time remaining until the current secret expires",
	})
)

type PushGateway struct {
	Pusher  *push.Pusher
	address string
}

func NewPushGateway(gatewayAddress string) *PushGateway {
	registry := prometheus.NewRegistry()
	registry.MustRegister(secretExpiration, errorTime, successTime, errorCount)
	pusher := push.New(gatewayAddress, "credrotate").Gatherer(registry)

	return &PushGateway{
		Pusher:  pusher,
		address: gatewayAddress,
	}
}

func (p *PushGateway) SetExpiration(remaining time.Duration) {
	secretExpiration.Set(remaining.Seconds())
}

func (p *PushGateway) SetSuccessTime() {
	successTime.SetToCurrentTime()
}

func (p *PushGateway) SetFailureTime() {
	errorTime.SetToCurrentTime()
}

func (p *PushGateway) IncFailureCount() {
	errorCount.Add(1)
}

func (p *PushGateway) Push() {
	if p.address == "" {
		return
	}

	instance, _ := os.Hostname()
	err := p.Pusher.
		Grouping("instance", instance).
		Add()
	if err != nil {
		log.Errorf("Could not push to Pushgateway: %s", err)
	}
}
