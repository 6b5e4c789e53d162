package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestStepping(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clk := Stepping(start, time.Minute)
	require.Equal(t, start, clk.Now())
	require.Equal(t, start.Add(time.Minute), clk.Now())
}
