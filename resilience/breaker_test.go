package resilience

import (
	"context"
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaychat/errors"
)

var errStoreDown = stderrors.New("store down")

func testBreaker() *Breaker {
	return NewBreaker(BreakerSettings{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Second,
	}, slog.Default())
}

func failing(context.Context) error { return errStoreDown }
func succeeding(context.Context) error { return nil }

func tripBreaker(t *testing.T, b *Breaker) {
	t.Helper()
	for i := 0; i < 3; i++ {
		_ = b.Do(context.Background(), failing)
	}
	require.Equal(t, StateOpen, b.State())
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	req := require.New(t)
	breaker := testBreaker()

	t.Run("should stay closed below the threshold", func(t *testing.T) {
		_ = breaker.Do(context.Background(), failing)
		_ = breaker.Do(context.Background(), failing)
		req.Equal(StateClosed, breaker.State())
	})

	t.Run("should reset the failure streak on success", func(t *testing.T) {
		req.NoError(breaker.Do(context.Background(), succeeding))
		_ = breaker.Do(context.Background(), failing)
		_ = breaker.Do(context.Background(), failing)
		req.Equal(StateClosed, breaker.State())
	})

	t.Run("should open at the threshold and short-circuit", func(t *testing.T) {
		_ = breaker.Do(context.Background(), failing)
		req.Equal(StateOpen, breaker.State())

		calls := 0
		err := breaker.Do(context.Background(), func(context.Context) error {
			calls++
			return nil
		})
		req.ErrorIs(err, errors.ErrBreakerOpen)
		req.Zero(calls)
	})
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	req := require.New(t)
	breaker := testBreaker()

	current := time.Now()
	breaker.now = func() time.Time { return current }

	tripBreaker(t, breaker)

	t.Run("should probe again after the open timeout", func(t *testing.T) {
		current = current.Add(11 * time.Second)

		req.NoError(breaker.Do(context.Background(), succeeding))
		req.Equal(StateHalfOpen, breaker.State())
	})

	t.Run("should close after enough probe successes", func(t *testing.T) {
		req.NoError(breaker.Do(context.Background(), succeeding))
		req.Equal(StateClosed, breaker.State())
	})
}

func TestBreaker_HalfOpenFailureRetrips(t *testing.T) {
	req := require.New(t)
	breaker := testBreaker()

	current := time.Now()
	breaker.now = func() time.Time { return current }

	tripBreaker(t, breaker)
	current = current.Add(11 * time.Second)

	// First probe fails: straight back to open, no second chance.
	err := breaker.Do(context.Background(), failing)
	req.ErrorIs(err, errStoreDown)
	req.Equal(StateOpen, breaker.State())

	err = breaker.Do(context.Background(), succeeding)
	req.ErrorIs(err, errors.ErrBreakerOpen)
}

func TestBreaker_OnOpenHook(t *testing.T) {
	req := require.New(t)
	trips := 0
	breaker := testBreaker().OnOpen(func(string) { trips++ })

	tripBreaker(t, breaker)
	req.Equal(1, trips)
}

func TestBreaker_CallTimeout(t *testing.T) {
	req := require.New(t)
	breaker := NewBreaker(BreakerSettings{
		Name:             "slow",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		CallTimeout:      20 * time.Millisecond,
	}, slog.Default())

	err := breaker.Do(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestBreaker_CallTimeoutOnHungCall(t *testing.T) {
	req := require.New(t)
	breaker := NewBreaker(BreakerSettings{
		Name:             "hung",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		CallTimeout:      20 * time.Millisecond,
	}, slog.Default())

	// The call never looks at its context, like a blocked store driver.
	// The breaker must still return at the deadline and count a failure.
	started := time.Now()
	err := breaker.Do(context.Background(), func(context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	req.ErrorIs(err, context.DeadlineExceeded)
	req.Less(time.Since(started), 200*time.Millisecond)
	req.Equal(StateOpen, breaker.State())
}

func TestBreaker_BusinessAnswersAreNotFailures(t *testing.T) {
	req := require.New(t)

	classified := func() *Breaker {
		return NewBreaker(BreakerSettings{
			Name:             "store",
			FailureThreshold: 3,
			SuccessThreshold: 2,
			OpenTimeout:      10 * time.Second,
			IsFailure:        func(err error) bool { return !errors.IsStoreOutcome(err) },
		}, slog.Default())
	}
	notFound := func(context.Context) error { return errors.ErrChannelNotFound }

	t.Run("should stay closed through repeated not-found answers", func(t *testing.T) {
		breaker := classified()
		for i := 0; i < 10; i++ {
			req.ErrorIs(breaker.Do(context.Background(), notFound), errors.ErrChannelNotFound)
		}
		req.Equal(StateClosed, breaker.State())
	})

	t.Run("should reset a failure streak with a not-found answer", func(t *testing.T) {
		breaker := classified()
		_ = breaker.Do(context.Background(), failing)
		_ = breaker.Do(context.Background(), failing)
		_ = breaker.Do(context.Background(), notFound)
		_ = breaker.Do(context.Background(), failing)
		_ = breaker.Do(context.Background(), failing)
		req.Equal(StateClosed, breaker.State())
	})

	t.Run("should count a not-found probe as recovery", func(t *testing.T) {
		breaker := classified()
		current := time.Now()
		breaker.now = func() time.Time { return current }

		tripBreaker(t, breaker)
		current = current.Add(11 * time.Second)

		// The store answering not-found proves it is back up.
		_ = breaker.Do(context.Background(), notFound)
		_ = breaker.Do(context.Background(), notFound)
		req.Equal(StateClosed, breaker.State())
	})
}
