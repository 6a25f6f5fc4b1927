package horde

import (
	"context"
	"fmt"
	"time"

	"github.com/VilotStar/StableHorder/internal/model"
)

const (
	DefaultPollInterval    = 1 * time.Second
	DefaultMaxPollInterval = 10 * time.Second
	DefaultPollTimeout     = 10 * time.Minute
	DefaultMaxCheckRetries = 3

	maxBackoffShift = 4
)

// Checker is the part of the generation client the poller needs.
type Checker interface {
	Check(ctx context.Context, id string) (*model.CheckResponse, error)
	Status(ctx context.Context, id string) (*model.Status, error)
}

// Poller waits for a submitted generation to finish.
//
// Zero fields take the Default* values. MaxAttempts of zero leaves the
// number of checks bounded only by Timeout.
type Poller struct {
	Interval        time.Duration
	MaxInterval     time.Duration
	Timeout         time.Duration
	MaxAttempts     int
	MaxCheckRetries int
}

// Wait checks generation id until it reports expected finished images,
// then retrieves its status exactly once. The status endpoint is never
// called before a check has reported completion.
//
// Wait returns ErrRemoteFault if the horde marks the generation faulted,
// ErrTimeout when the poll budget runs out, and the context's error when
// ctx is cancelled.
func (p Poller) Wait(ctx context.Context, checker Checker, id string, expected int) (*model.Status, error) {
	p = p.withDefaults()

	pollCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	attempts := 0
	failures := 0
	for {
		attempts++
		check, err := checker.Check(pollCtx, id)
		switch {
		case err == nil:
			failures = 0
			if check.Faulted {
				return nil, fmt.Errorf("%w: %s", ErrRemoteFault, id)
			}
			if check.Complete(expected) {
				return p.retrieve(ctx, checker, id)
			}

		case pollCtx.Err() != nil:
			return nil, p.stopped(ctx, id, attempts)

		case Retryable(err) && failures < p.MaxCheckRetries:
			failures++
			logf("check %s failed (retry %d/%d): %v", id, failures, p.MaxCheckRetries, err)

		default:
			return nil, err
		}

		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			return nil, fmt.Errorf("%w: %s not finished after %d checks", ErrTimeout, id, attempts)
		}

		timer := time.NewTimer(p.delay(attempts))
		select {
		case <-timer.C:
		case <-pollCtx.Done():
			timer.Stop()
			return nil, p.stopped(ctx, id, attempts)
		}
	}
}

func (p Poller) retrieve(ctx context.Context, checker Checker, id string) (*model.Status, error) {
	status, err := checker.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if status.Faulted {
		return nil, fmt.Errorf("%w: %s", ErrRemoteFault, id)
	}
	return status, nil
}

// stopped tells a caller cancellation apart from the poll timeout.
func (p Poller) stopped(ctx context.Context, id string, attempts int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s not finished within %v (%d checks)", ErrTimeout, id, p.Timeout, attempts)
}

// delay is an exponential back-off capped at MaxInterval.
func (p Poller) delay(attempt int) time.Duration {
	d := p.Interval * time.Duration(1<<uint(min(attempt-1, maxBackoffShift)))
	if d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

func (p Poller) withDefaults() Poller {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultMaxPollInterval
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultPollTimeout
	}
	if p.MaxCheckRetries < 0 {
		p.MaxCheckRetries = 0
	} else if p.MaxCheckRetries == 0 {
		p.MaxCheckRetries = DefaultMaxCheckRetries
	}
	return p
}
