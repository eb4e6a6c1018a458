package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsBlocked(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.False(t, IsBlocked(time.Time{}, now))
	assert.True(t, IsBlocked(now.Add(time.Second), now))
	assert.False(t, IsBlocked(now, now))
	assert.False(t, IsBlocked(now.Add(-time.Minute), now))
}
