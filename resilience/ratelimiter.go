//go:generate go run go.uber.org/mock/mockgen -source=ratelimiter.go -destination=../mocks/mock_ratelimiter.go -package=mocks
package resilience

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"relaychat/repositories"
)

// Outcome classifies a finished request for behavior scoring.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeSuspicious
	OutcomeAuthFailure
)

const (
	scoreInitial = 50
	scoreMin     = 0
	scoreMax     = 100
	scoreTTL     = 24 * time.Hour
)

func (o Outcome) delta() int {
	switch o {
	case OutcomeSuccess:
		return 1
	case OutcomeFailure:
		return -5
	case OutcomeSuspicious:
		return -15
	case OutcomeAuthFailure:
		return -10
	default:
		return 0
	}
}

// ScoreRecorder is the write half of the limiter, split off so components
// that only penalize or reward (authenticator, message router) do not see
// the quota API.
type ScoreRecorder interface {
	Record(ctx context.Context, userID string, outcome Outcome)
}

// LimiterConfig bounds the quota curve. The per-user rate interpolates
// between Min and Max according to the behavior score.
type LimiterConfig struct {
	MinRate         rate.Limit    // events/sec at score 0
	MaxRate         rate.Limit    // events/sec at score 100
	Burst           int           // bucket size for identified users
	AnonymousRate   rate.Limit    // fixed low quota before authentication
	AnonymousBurst  int
	CleanupInterval time.Duration // idle bucket eviction period
}

func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MinRate:         rate.Limit(0.5),
		MaxRate:         rate.Limit(10),
		Burst:           20,
		AnonymousRate:   rate.Limit(1),
		AnonymousBurst:  3,
		CleanupInterval: 5 * time.Minute,
	}
}

type userBucket struct {
	limiter    *rate.Limiter
	score      int
	lastAccess time.Time
}

// Limiter computes per-identity quotas from a persisted behavior score.
// Scores live in the cache with a TTL so trust decays back to the initial
// value for users who stay away. Cache outages degrade every caller to the
// anonymous quota rather than blocking: this is advisory throttling, not a
// security boundary.
type Limiter struct {
	config    LimiterConfig
	cache     repositories.ICache
	breaker   *Breaker
	log       *slog.Logger
	mu        sync.Mutex
	buckets   map[string]*userBucket
	anonymous *rate.Limiter
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewLimiter(config LimiterConfig, cache repositories.ICache, breaker *Breaker, log *slog.Logger) *Limiter {
	l := &Limiter{
		config:    config,
		cache:     cache,
		breaker:   breaker,
		log:       log,
		buckets:   make(map[string]*userBucket),
		anonymous: rate.NewLimiter(config.AnonymousRate, config.AnonymousBurst),
		stopCh:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop terminates the background cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Allow reports whether the caller may proceed. An empty userID is an
// unauthenticated caller sharing the fixed anonymous bucket.
func (l *Limiter) Allow(ctx context.Context, userID string) bool {
	if userID == "" {
		return l.anonymous.Allow()
	}
	return l.bucketFor(ctx, userID).limiter.Allow()
}

// Record adjusts the behavior score after a request outcome and reprices
// the user's bucket accordingly. Persistence failures are logged and
// swallowed: the in-memory score keeps working for the live connection.
func (l *Limiter) Record(ctx context.Context, userID string, outcome Outcome) {
	if userID == "" {
		return
	}
	b := l.bucketFor(ctx, userID)

	l.mu.Lock()
	score := clampScore(b.score + outcome.delta())
	b.score = score
	b.limiter.SetLimit(l.rateFor(score))
	l.mu.Unlock()

	if err := l.persistScore(ctx, userID, score); err != nil {
		l.log.Debug("Behavior score persistence skipped", "user_id", userID, "error", err)
	}
}

// Score returns the current behavior score for a user. Used by tests and
// the stats endpoint.
func (l *Limiter) Score(ctx context.Context, userID string) int {
	b := l.bucketFor(ctx, userID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return b.score
}

func (l *Limiter) bucketFor(ctx context.Context, userID string) *userBucket {
	l.mu.Lock()
	if b, ok := l.buckets[userID]; ok {
		b.lastAccess = time.Now()
		l.mu.Unlock()
		return b
	}
	l.mu.Unlock()

	// Load outside the mutex: the cache call may suspend.
	score := l.loadScore(ctx, userID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[userID]; ok {
		b.lastAccess = time.Now()
		return b
	}
	b := &userBucket{
		limiter:    rate.NewLimiter(l.rateFor(score), l.config.Burst),
		score:      score,
		lastAccess: time.Now(),
	}
	l.buckets[userID] = b
	return b
}

func (l *Limiter) rateFor(score int) rate.Limit {
	span := float64(l.config.MaxRate - l.config.MinRate)
	return l.config.MinRate + rate.Limit(span*float64(score)/float64(scoreMax))
}

func (l *Limiter) loadScore(ctx context.Context, userID string) int {
	score := scoreInitial
	err := l.breaker.Do(ctx, func(ctx context.Context) error {
		raw, err := l.cache.Get(scoreKey(userID))
		if err != nil {
			return err
		}
		parsed, err := strconv.Atoi(string(raw))
		if err != nil {
			return err
		}
		score = clampScore(parsed)
		return nil
	})
	if err != nil {
		// Cache miss or cache outage: start from the neutral score and
		// try to seed the entry for next time.
		if err := l.persistScore(ctx, userID, score); err != nil {
			l.log.Debug("Behavior score seeding skipped", "user_id", userID, "error", err)
		}
	}
	return score
}

func (l *Limiter) persistScore(ctx context.Context, userID string, score int) error {
	return l.breaker.Do(ctx, func(ctx context.Context) error {
		return l.cache.Set(scoreKey(userID), []byte(strconv.Itoa(score)), scoreTTL)
	})
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup drops buckets idle for more than twice the cleanup interval.
func (l *Limiter) cleanup() {
	ttl := l.config.CleanupInterval * 2
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for userID, b := range l.buckets {
		if now.Sub(b.lastAccess) > ttl {
			delete(l.buckets, userID)
		}
	}
}

func clampScore(score int) int {
	if score < scoreMin {
		return scoreMin
	}
	if score > scoreMax {
		return scoreMax
	}
	return score
}

func scoreKey(userID string) string { return "score:" + userID }
