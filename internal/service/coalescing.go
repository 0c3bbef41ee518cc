package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-explorer/internal/models"
)

var errCoalesceTimeout = errors.New("coalesced request timed out")

// requestCoalescer collapses concurrent upstream resolutions of the same key into one call.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// Do runs fn once per key among concurrent callers and hands every caller the same result.
// fn runs on a context detached from the first caller's cancellation (values are kept) and
// bounded by the coalescer timeout, so one caller going away does not fail the others.
// shared reports whether the result was handed to more than one caller.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func(context.Context) models.Resolution) (res models.Resolution, shared bool, err error) {
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		defer cancel()
		return fn(fctx), nil
	})

	timer := time.NewTimer(rc.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.Val.(models.Resolution), r.Shared, nil
	case <-ctx.Done():
		return models.Resolution{}, false, ctx.Err()
	case <-timer.C:
		return models.Resolution{}, false, errCoalesceTimeout
	}
}
