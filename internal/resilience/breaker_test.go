package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(Settings{Name: "test-open", FailureThreshold: 2, Timeout: time.Hour})
	boom := errors.New("boom")
	calls := 0
	fail := func() (string, error) {
		calls++
		return "", boom
	}

	_, err := Call(b, fail)
	assert.ErrorIs(t, err, boom)
	_, err = Call(b, fail)
	assert.ErrorIs(t, err, boom)

	_, err = Call(b, fail)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "open", b.State())
}

func TestBreakerPassesResults(t *testing.T) {
	b := NewBreaker(Settings{Name: "test-ok"})
	out, err := Call(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, "closed", b.State())
}
