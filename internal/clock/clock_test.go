package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	assert.Equal(t, start, c.Now())

	ch := c.After(10 * time.Minute)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	c.Advance(5 * time.Minute)
	select {
	case <-ch:
		t.Fatal("timer fired halfway to its deadline")
	default:
	}

	c.Advance(5 * time.Minute)
	select {
	case now := <-ch:
		assert.Equal(t, start.Add(10*time.Minute), now)
	default:
		t.Fatal("timer did not fire at its deadline")
	}

	assert.Equal(t, start.Add(10*time.Minute), c.Now())
}

func TestFakeClockAfterNonPositiveFiresImmediately(t *testing.T) {
	c := NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	select {
	case <-c.After(0):
	default:
		t.Fatal("expected immediate fire")
	}
}

func TestSystemClock(t *testing.T) {
	c := NewSystemClock()

	before := time.Now()
	got := c.Now()
	assert.False(t, got.Before(before.Add(-time.Second)))

	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("After never fired")
	}
}
