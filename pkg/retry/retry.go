// Package retry wraps fallible operations in exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/projectify/live/config"
	"github.com/projectify/live/errors"
	"github.com/projectify/live/logging"
)

// Policy configures the exponential backoff. A zero MaxElapsedTime retries
// until the context is cancelled.
type Policy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxElapsedTime      time.Duration
}

// DefaultPolicy mirrors the backoff library defaults, except that it never
// gives up on its own.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     backoff.DefaultInitialInterval,
		MaxInterval:         backoff.DefaultMaxInterval,
		Multiplier:          backoff.DefaultMultiplier,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		MaxElapsedTime:      0,
	}
}

// FromConfig converts the retry section of live.yml.
func FromConfig(c config.RetryConfig) Policy {
	return Policy{
		InitialInterval:     c.InitialInterval.Std(),
		MaxInterval:         c.MaxInterval.Std(),
		Multiplier:          c.Multiplier,
		RandomizationFactor: c.RandomizationFactor,
		MaxElapsedTime:      c.MaxElapsedTime.Std(),
	}.WithDefaults()
}

// WithDefaults fills unset fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	def := DefaultPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.RandomizationFactor < 0 || p.RandomizationFactor > 1 {
		p.RandomizationFactor = def.RandomizationFactor
	}
	if p.MaxElapsedTime < 0 {
		p.MaxElapsedTime = 0
	}
	return p
}

// NewBackOff builds a backoff.BackOff bound to ctx.
func (p Policy) NewBackOff(ctx context.Context) backoff.BackOff {
	p = p.WithDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = p.MaxElapsedTime
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Notify is called before every retry with the error that caused it.
type Notify func(err error, attempt int, next time.Duration)

// Options tune a single retried call.
type Options struct {
	// Name shows up in retry log lines.
	Name   string
	Logger *logrus.Entry
	Notify Notify
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the policy gives up
// or ctx is done. Errors for which errors.IsPermanent holds are never retried.
func Do(ctx context.Context, p Policy, opts Options, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("retry")
	}
	attempt := 0

	wrapped := func() (T, error) {
		v, err := op(ctx)
		if err != nil && errors.IsPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, next time.Duration) {
		attempt++
		logger.WithFields(logrus.Fields{
			"operation": opts.Name,
			"attempt":   attempt,
			"next":      next,
		}).WithError(err).Debug("Retrying")
		if opts.Notify != nil {
			opts.Notify(err, attempt, next)
		}
	}

	return backoff.RetryNotifyWithData(wrapped, p.NewBackOff(ctx), notify)
}
