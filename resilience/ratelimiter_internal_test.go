package resilience

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLimiter_RateInterpolation(t *testing.T) {
	req := require.New(t)
	limiter := &Limiter{config: LimiterConfig{
		MinRate: rate.Limit(0.5),
		MaxRate: rate.Limit(10),
	}}

	req.InDelta(0.5, float64(limiter.rateFor(0)), 0.001)
	req.InDelta(5.25, float64(limiter.rateFor(50)), 0.001)
	req.InDelta(10, float64(limiter.rateFor(100)), 0.001)
}
