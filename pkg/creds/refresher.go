package creds

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Reporter receives rotation outcomes. Satisfied by metrics.PushGateway.
type Reporter interface {
	SetSuccessTime()
	SetFailureTime()
	IncFailureCount()
	SetExpiration(remaining time.Duration)
	Push()
}

// Refresher periodically fetches fresh credentials from a Source and swaps
// them into the Store. A failed refresh leaves the previous snapshot active;
// a fatal failure (the source says we will never be allowed again) stops the
// loop and signals the done channel.
type Refresher struct {
	store    *Store
	source   Source
	interval time.Duration
	kick     chan struct{}

	// SnapshotPath, when set, persists every rotated snapshot for restart
	// continuity.
	SnapshotPath string

	// OnRotate, when set, runs after every successful rotation.
	OnRotate func(*Credentials)

	// Metrics, when set, receives rotation outcomes.
	Metrics Reporter
}

func NewRefresher(store *Store, source Source, interval time.Duration) *Refresher {
	return &Refresher{
		store:    store,
		source:   source,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an immediate refresh, used when a consumer detects an
// authentication failure before the next scheduled rotation. It never
// blocks; a refresh already pending absorbs the kick.
func (r *Refresher) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run rotates credentials until ctx is cancelled. It sends 1 on c if
// rotation fails fatally.
func (r *Refresher) Run(ctx context.Context, c chan int) {
	go func() {
		log.Infof("rotating credentials every %s", r.interval)

		ticks := time.Tick(r.interval)

		for {
			select {
			case <-ctx.Done():
				log.Infof("stopping rotation")
				return
			case <-r.kick:
				log.Infof("rotation requested on demand")
			case <-ticks:
			}

			err := r.refresh(ctx)
			if err != nil {
				log.Errorf("error rotating credentials: %s", err)
			}
			if err == ErrPermissionDenied {
				log.Error("credentials can no longer be rotated")
				c <- 1
				return
			}
		}
	}()
}

func (r *Refresher) refresh(ctx context.Context) error {
	var fetched *Credentials

	op := func() error {
		creds, err := r.source.Fetch(ctx)
		if err != nil {
			log.Errorf("error fetching credentials: %s", err)
			r.reportFailure()
			fatalError := checkFatalError(err)
			if fatalError != nil {
				return backoff.Permanent(fatalError)
			}
			return err
		}
		fetched = creds
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(defaultRetryStrategy(r.interval), ctx))
	if err != nil {
		return err
	}

	epoch := r.store.Replace(fetched)
	log.WithFields(fetched.fields()).Infof("rotated credentials, epoch %d", epoch)

	if r.SnapshotPath != "" {
		if err := r.store.Current().Save(r.SnapshotPath); err != nil {
			log.Errorf("error persisting snapshot: %s", err)
		}
	}

	if r.OnRotate != nil {
		r.OnRotate(fetched)
	}

	r.reportSuccess(fetched)
	return nil
}

func (r *Refresher) reportSuccess(creds *Credentials) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.SetSuccessTime()
	if !creds.Expiry.IsZero() {
		r.Metrics.SetExpiration(time.Until(creds.Expiry))
	}
	r.Metrics.Push()
}

func (r *Refresher) reportFailure() {
	if r.Metrics == nil {
		return
	}
	r.Metrics.SetFailureTime()
	r.Metrics.IncFailureCount()
	r.Metrics.Push()
}
