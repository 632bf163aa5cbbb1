package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const claimWindow = time.Minute

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Limiter throttles review claim attempts per user over a fixed one-minute
// window. A zero limit disables throttling.
type Limiter struct {
	store     WindowStore
	perMinute int
}

func NewLimiter(store WindowStore, perMinute int) *Limiter {
	if perMinute < 0 {
		perMinute = 0
	}

	return &Limiter{
		store:     store,
		perMinute: perMinute,
	}
}

// AllowClaim counts the attempt and reports whether it is within the limit.
// When the limit is exceeded it returns the number of seconds until the
// window resets.
func (l *Limiter) AllowClaim(ctx context.Context, userID int64) (int64, bool, error) {
	if userID <= 0 {
		return 0, false, fmt.Errorf("invalid user id")
	}
	if l.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}
	if l.perMinute == 0 {
		return 0, true, nil
	}

	count, ttl, err := l.store.IncrementWindow(ctx, claimKey(userID), claimWindow)
	if err != nil {
		return 0, false, err
	}
	if count > int64(l.perMinute) {
		return ceilSeconds(ttl), false, nil
	}

	return 0, true, nil
}

func claimKey(userID int64) string {
	return "rate:review_claim:min:" + strconv.FormatInt(userID, 10)
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	if sec <= 0 {
		sec = 1
	}
	return sec
}
