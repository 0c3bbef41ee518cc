// Package sequencer paces a batch of weather lookups one location at a time so that a page
// of cards does not trip the service's rate limit.
package sequencer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-explorer/internal/models"
)

const (
	DefaultDelay            = time.Second
	DefaultRateLimitedDelay = 2 * time.Second
	DefaultRequestTimeout   = 10 * time.Second
)

// ErrRateLimited is returned by a Fetcher when the service explicitly refused the request.
var ErrRateLimited = errors.New("rate limited")

// Fetcher resolves one location to an envelope.
type Fetcher interface {
	FetchWeather(ctx context.Context, location string) (models.Envelope, error)
}

// ImageLookup is an optional follow-up call made after a location's weather is merged.
type ImageLookup interface {
	LookupImages(ctx context.Context, location string) error
}

type Option func(*Sequencer)

// WithDelay sets the spacing between consecutive fetches.
func WithDelay(d time.Duration) Option {
	return func(s *Sequencer) { s.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithLimiter shares one pacing limiter across sequencers. It overrides WithDelay.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Sequencer) { s.limiter = l }
}

func WithRateLimitedDelay(d time.Duration) Option {
	return func(s *Sequencer) { s.rateLimitedDelay = d }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Sequencer) { s.requestTimeout = d }
}

func WithImageLookup(images ImageLookup) Option {
	return func(s *Sequencer) { s.images = images }
}

// WithOnResolved registers a callback invoked after each merge, in fetch order.
func WithOnResolved(fn func(location string, env models.Envelope)) Option {
	return func(s *Sequencer) { s.onResolved = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sequencer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sequencer fetches the locations of a Batch sequentially.
type Sequencer struct {
	fetcher          Fetcher
	limiter          *rate.Limiter
	rateLimitedDelay time.Duration
	requestTimeout   time.Duration
	images           ImageLookup
	onResolved       func(location string, env models.Envelope)
	logger           *zap.Logger
}

func New(fetcher Fetcher, opts ...Option) *Sequencer {
	s := &Sequencer{
		fetcher:          fetcher,
		limiter:          rate.NewLimiter(rate.Every(DefaultDelay), 1),
		rateLimitedDelay: DefaultRateLimitedDelay,
		requestTimeout:   DefaultRequestTimeout,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run fetches every remaining location in b, starting at its cursor. The first request is
// issued immediately and later ones wait for the pacing limiter. A failed location is
// recorded and skipped; an explicit rate limit additionally backs off before continuing.
// Run returns nil when the batch is exhausted or discarded, and an error only when ctx ends.
func (s *Sequencer) Run(ctx context.Context, b *Batch) error {
	for {
		loc, ok := b.next()
		if !ok {
			return nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		env, err := s.fetch(ctx, loc)
		switch {
		case err == nil:
			s.merge(ctx, b, loc, env)
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, ErrRateLimited):
			b.fail(loc, err)
			s.logger.Warn("rate limited, backing off",
				zap.String("location", loc),
				zap.Duration("delay", s.rateLimitedDelay))
			if err := sleep(ctx, s.rateLimitedDelay); err != nil {
				return err
			}
		default:
			b.fail(loc, err)
			s.logger.Warn("weather fetch failed", zap.String("location", loc), zap.Error(err))
		}
	}
}

func (s *Sequencer) fetch(ctx context.Context, location string) (models.Envelope, error) {
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	return s.fetcher.FetchWeather(ctx, location)
}

func (s *Sequencer) merge(ctx context.Context, b *Batch, location string, env models.Envelope) {
	if !b.merge(location, env) {
		s.logger.Debug("dropping result for discarded batch", zap.String("location", location))
		return
	}
	if s.onResolved != nil {
		s.onResolved(location, env)
	}
	if s.images == nil {
		return
	}
	lctx := ctx
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	if err := s.images.LookupImages(lctx, location); err != nil {
		s.logger.Info("image lookup failed", zap.String("location", location), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
