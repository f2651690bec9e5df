// Package resilient wraps a registry.BlobStore with a per-call timeout and a
// circuit breaker, so a slow or failing blob backend cannot stall requests.
package resilient

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
	"github.com/tendant/simple-registry/pkg/registry"
)

// Config tunes the decorator. Zero values pick the defaults.
type Config struct {
	Name           string        // backend name used in errors
	Timeout        time.Duration // per-call deadline for Upload and Delete (default 30s)
	Threshold      int64         // failures before the breaker opens (default 5)
	InitialBackoff time.Duration // first open interval (default 30s)
	MaxBackoff     time.Duration // longest open interval (default 5m)
}

// Store is a registry.BlobStore guarded by a timeout and a circuit breaker.
// registry.ErrBlobNotFound is passed through and never counts as a failure.
type Store struct {
	next    registry.BlobStore
	name    string
	timeout time.Duration
	breaker *circuit.Breaker
}

// New wraps next.
func New(next registry.BlobStore, cfg Config) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 5 * time.Minute
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.InitialBackoff
	expBackoff.MaxInterval = cfg.MaxBackoff
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return &Store{
		next:    next,
		name:    cfg.Name,
		timeout: cfg.Timeout,
		breaker: circuit.NewBreakerWithOptions(&circuit.Options{
			BackOff:    expBackoff,
			ShouldTrip: circuit.ThresholdTripFunc(cfg.Threshold),
		}),
	}
}

// State returns "open" while the breaker rejects calls, "closed" otherwise.
func (s *Store) State() string {
	if s.breaker.Tripped() {
		return "open"
	}
	return "closed"
}

func (s *Store) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return s.call(ctx, "upload", objectKey, true, func(ctx context.Context) error {
		return s.next.Upload(ctx, objectKey, reader)
	})
}

// Download is not bounded by the timeout: the caller streams the body after
// the call returns.
func (s *Store) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := s.call(ctx, "download", objectKey, false, func(ctx context.Context) error {
		var err error
		rc, err = s.next.Download(ctx, objectKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *Store) Delete(ctx context.Context, objectKey string) error {
	return s.call(ctx, "delete", objectKey, true, func(ctx context.Context) error {
		return s.next.Delete(ctx, objectKey)
	})
}

func (s *Store) call(ctx context.Context, op, key string, bounded bool, fn func(context.Context) error) error {
	var notFound error
	err := s.breaker.Call(func() error {
		callCtx := ctx
		if bounded {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		err := fn(callCtx)
		if errors.Is(err, registry.ErrBlobNotFound) {
			notFound = err
			return nil
		}
		return err
	}, 0)
	if err != nil {
		return &registry.StorageError{Backend: s.name, Key: key, Op: op, Err: err}
	}
	return notFound
}
