package requester

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "skeeterdeleter/pkg/errors"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/ratelimit"
	"skeeterdeleter/pkg/retry"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestExecutor(t *testing.T) (*Executor, *ratelimit.FakeClock, *logger.TestLogger) {
	t.Helper()
	clock := ratelimit.NewFakeClock(epoch)
	tl := logger.NewTestLogger()
	e := New(Options{
		Gate:    ratelimit.NewGate(ratelimit.DefaultInterval, clock),
		Clock:   clock,
		Backoff: &retry.ExponentialBackoff{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2},
		Logger:  tl,
	})
	return e, clock, tl
}

func TestExecutorSuccess(t *testing.T) {
	e, clock, _ := newTestExecutor(t)

	calls := 0
	err := e.Do(context.Background(), "app.bsky.feed.getActorLikes", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ratelimit.DefaultInterval, clock.Slept(), "the first request waits one interval")
}

func TestExecutorSpacingAcrossCalls(t *testing.T) {
	e, clock, _ := newTestExecutor(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, e.Do(ctx, "op", func(context.Context) error { return nil }))
	}
	assert.GreaterOrEqual(t, clock.Now().Sub(epoch), 4*ratelimit.DefaultInterval)
	assert.Equal(t, 4, e.Gate().Admitted())
}

func TestExecutorTransientExhaustion(t *testing.T) {
	e, clock, tl := newTestExecutor(t)

	calls := 0
	err := e.Do(context.Background(), "app.bsky.feed.getAuthorFeed", func(context.Context) error {
		calls++
		return &errs.Error{Type: errs.ErrorTypeServerError, Code: 502, Message: "bad gateway"}
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, errs.TransientFailure, errs.KindOf(err))
	var f *errs.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, 3, f.Attempts)

	// the first gate wait, then backoff of 1s and 2s; later gate waits are
	// already covered by the backoff
	assert.Equal(t, []time.Duration{
		ratelimit.DefaultInterval, time.Second, 2 * time.Second,
	}, clock.Sleeps())
	assert.Equal(t, 3, e.Gate().Admitted())
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 2)
}

func TestExecutorRecoversAfterTransient(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	calls := 0
	got, err := Call(context.Background(), e, "op", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &errs.Error{Type: errs.ErrorTypeRateLimit, Code: 429}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, e.Gate().Admitted())
}

func TestExecutorFatalNotRetried(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	calls := 0
	err := e.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return &errs.Error{Type: errs.ErrorTypeAuth, Code: 401}
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, errs.FatalFailure, errs.KindOf(err))
	assert.True(t, errs.IsType(err, errs.ErrorTypeAuth))
}

func TestExecutorUnclassifiedErrorIsFatal(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	err := e.Do(context.Background(), "op", func(context.Context) error {
		return errors.New("decode response: unexpected EOF")
	})
	assert.Equal(t, errs.FatalFailure, errs.KindOf(err))
}

func TestExecutorNotFoundIsItemFailure(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	err := e.Do(context.Background(), "com.atproto.repo.deleteRecord", func(context.Context) error {
		return &errs.Error{Type: errs.ErrorTypeNotFound, Code: 400}
	})
	assert.Equal(t, errs.ItemActionFailure, errs.KindOf(err))
}

func TestExecutorCancelled(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := e.Do(ctx, "op", func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}
