package db

import (
	"context"
	"database/sql"
	"time"

	log "github.com/sirupsen/logrus"
)

// Pinger watches the pool for authentication failures. When the server
// starts rejecting the active credentials it kicks the refresher rather
// than waiting for the next scheduled rotation.
type Pinger struct {
	pool     *sql.DB
	interval time.Duration
	kick     func()
}

func NewPinger(pool *sql.DB, interval time.Duration, kick func()) *Pinger {
	return &Pinger{pool: pool, interval: interval, kick: kick}
}

func (p *Pinger) Run(ctx context.Context) {
	go func() {
		ticker := time.Tick(p.interval)

		for {
			select {
			case <-ctx.Done():
				log.Infof("stopping pinger")
				return
			case <-ticker:
				err := p.ping(ctx)
				if err == nil {
					continue
				}
				if IsAuthError(err) {
					log.Error("database rejected current credentials, requesting rotation")
					p.kick()
				} else {
					log.Errorf("error pinging database: %s", err)
				}
			}
		}
	}()
}

func (p *Pinger) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.pool.PingContext(pingCtx)
}
