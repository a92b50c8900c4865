// internal/pkg/backoff/backoff_test.go
package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDoublesUntilCap(t *testing.T) {
	p := New(2*time.Second, 3)

	d, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	d, ok = p.Next()
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, d)

	// Third failure hits the cap: no more retries.
	_, ok = p.Next()
	assert.False(t, ok)
	assert.Equal(t, 3, p.Attempt())
}

func TestResetClearsAttempts(t *testing.T) {
	p := New(time.Second, 3)

	p.Next()
	p.Next()
	require.Equal(t, 2, p.Attempt())

	p.Reset()
	assert.Equal(t, 0, p.Attempt())

	d, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestSingleAttemptPolicyNeverRetries(t *testing.T) {
	p := New(time.Second, 1)

	_, ok := p.Next()
	assert.False(t, ok)
}
