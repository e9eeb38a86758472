package creds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

var ErrPermissionDenied = errors.New("permission denied")

// Source fetches a fresh credentials snapshot from wherever secrets live.
type Source interface {
	Fetch(ctx context.Context) (*Credentials, error)
}

// StaticSource always returns the same snapshot. Useful for bootstrap and
// tests.
type StaticSource struct {
	Credentials *Credentials
}

func (s *StaticSource) Fetch(ctx context.Context) (*Credentials, error) {
	return s.Credentials, nil
}

// FileSource reads a previously saved snapshot, so a restarted process can
// carry on with the epoch it had before dying.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Fetch(ctx context.Context) (*Credentials, error) {
	log.Infof("loading credentials snapshot from %s", s.path)
	bytes, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("error reading snapshot: %v", err)
	}

	return unmarshalCredentials(bytes)
}

func defaultRetryStrategy(max time.Duration) backoff.BackOff {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = time.Millisecond * 500
	strategy.MaxElapsedTime = max
	return strategy
}

// checkFatalError maps errors that no amount of retrying will fix onto
// sentinels. The Vault client surfaces permission problems as a formatted
// response error, hence the substring check.
func checkFatalError(err error) error {
	if errors.Is(err, ErrPermissionDenied) {
		return ErrPermissionDenied
	}
	if strings.Contains(err.Error(), "Code: 403") {
		return ErrPermissionDenied
	}
	return nil
}
