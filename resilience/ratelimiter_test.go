package resilience_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"relaychat/errors"
	"relaychat/mocks"
	"relaychat/resilience"
)

func limiterConfig() resilience.LimiterConfig {
	return resilience.LimiterConfig{
		MinRate:         rate.Limit(0.5),
		MaxRate:         rate.Limit(10),
		Burst:           20,
		AnonymousRate:   rate.Limit(1),
		AnonymousBurst:  2,
		CleanupInterval: time.Minute,
	}
}

func cacheBreaker() *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerSettings{
		Name:             "cache",
		FailureThreshold: 100,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
	}, slog.Default())
}

func TestLimiter_ScoreLifecycle(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	cache := mocks.NewMockICache(ctrl)
	// Fresh user: no persisted score, every write accepted.
	cache.EXPECT().Get(gomock.Any()).Return(nil, errors.ErrCacheMiss).AnyTimes()
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	limiter := resilience.NewLimiter(limiterConfig(), cache, cacheBreaker(), slog.Default())
	defer limiter.Stop()

	t.Run("should start a new user at the neutral score", func(t *testing.T) {
		req.Equal(50, limiter.Score(ctx, "u1"))
	})

	t.Run("should reward success by one point", func(t *testing.T) {
		limiter.Record(ctx, "u1", resilience.OutcomeSuccess)
		req.Equal(51, limiter.Score(ctx, "u1"))
	})

	t.Run("should penalize failures and suspicious activity harder", func(t *testing.T) {
		limiter.Record(ctx, "u1", resilience.OutcomeFailure)
		req.Equal(46, limiter.Score(ctx, "u1"))

		limiter.Record(ctx, "u1", resilience.OutcomeSuspicious)
		req.Equal(31, limiter.Score(ctx, "u1"))

		limiter.Record(ctx, "u1", resilience.OutcomeAuthFailure)
		req.Equal(21, limiter.Score(ctx, "u1"))
	})

	t.Run("should clamp the score to its bounds", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			limiter.Record(ctx, "u1", resilience.OutcomeSuspicious)
		}
		req.Equal(0, limiter.Score(ctx, "u1"))

		for i := 0; i < 150; i++ {
			limiter.Record(ctx, "u1", resilience.OutcomeSuccess)
		}
		req.Equal(100, limiter.Score(ctx, "u1"))
	})
}

func TestLimiter_ConcurrentScoreReads(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	cache := mocks.NewMockICache(ctrl)
	cache.EXPECT().Get(gomock.Any()).Return(nil, errors.ErrCacheMiss).AnyTimes()
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	limiter := resilience.NewLimiter(limiterConfig(), cache, cacheBreaker(), slog.Default())
	defer limiter.Stop()

	// Writers and readers share the bucket; both sides must take the lock.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				limiter.Record(ctx, "u1", resilience.OutcomeSuccess)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				score := limiter.Score(ctx, "u1")
				req.GreaterOrEqual(score, 0)
				req.LessOrEqual(score, 100)
			}
		}()
	}
	wg.Wait()

	req.Equal(100, limiter.Score(ctx, "u1"))
}

func TestLimiter_LoadsPersistedScore(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	cache := mocks.NewMockICache(ctrl)
	cache.EXPECT().Get("score:u9").Return([]byte("80"), nil).Times(1)

	limiter := resilience.NewLimiter(limiterConfig(), cache, cacheBreaker(), slog.Default())
	defer limiter.Stop()

	req.Equal(80, limiter.Score(ctx, "u9"))
	// Second call hits the in-memory bucket, not the cache.
	req.Equal(80, limiter.Score(ctx, "u9"))
}

func TestLimiter_AnonymousQuota(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	cache := mocks.NewMockICache(ctrl)
	limiter := resilience.NewLimiter(limiterConfig(), cache, cacheBreaker(), slog.Default())
	defer limiter.Stop()

	// Burst of 2, then the shared bucket runs dry.
	req.True(limiter.Allow(ctx, ""))
	req.True(limiter.Allow(ctx, ""))
	req.False(limiter.Allow(ctx, ""))
}

func TestLimiter_CacheOutageFallsBackToNeutral(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	cache := mocks.NewMockICache(ctrl)
	cache.EXPECT().Get(gomock.Any()).Return(nil, errors.ErrCacheMiss).AnyTimes()
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(context.DeadlineExceeded).AnyTimes()

	limiter := resilience.NewLimiter(limiterConfig(), cache, cacheBreaker(), slog.Default())
	defer limiter.Stop()

	// Persistence failing must not break live scoring.
	req.Equal(50, limiter.Score(ctx, "u2"))
	limiter.Record(ctx, "u2", resilience.OutcomeSuccess)
	req.Equal(51, limiter.Score(ctx, "u2"))
	req.True(limiter.Allow(ctx, "u2"))
}
