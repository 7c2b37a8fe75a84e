package limiter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Manager basics
// ---------------------------------------------------------------------------

func TestNewManager_Empty(t *testing.T) {
	m := NewManager()
	// No configs; Acquire/Release should always succeed.
	if !m.Acquire("any-platform", "") {
		t.Fatal("expected Acquire to succeed for unconfigured platform")
	}
	m.Release("any-platform", "")
}

func TestNewManager_WithConfig(t *testing.T) {
	m := NewManager(Config{
		Platform:       "tiktok",
		MaxConcurrency: 2,
	})
	if m.ActiveCount("tiktok") != 0 {
		t.Fatal("expected 0 active dispatches initially")
	}
}

// ---------------------------------------------------------------------------
// Concurrency limits
// ---------------------------------------------------------------------------

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Config{
		Platform:       "tiktok",
		MaxConcurrency: 2,
	})

	if !m.Acquire("tiktok", "") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire("tiktok", "") {
		t.Fatal("second Acquire should succeed")
	}
	// Third should be blocked.
	if m.Acquire("tiktok", "") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	// Release one slot.
	m.Release("tiktok", "")
	if !m.Acquire("tiktok", "") {
		t.Fatal("Acquire should succeed after Release")
	}
}

func TestManager_AcquireRelease_ActiveCount(t *testing.T) {
	m := NewManager(Config{
		Platform:       "x",
		MaxConcurrency: 5,
	})

	for i := range 3 {
		if !m.Acquire("x", "") {
			t.Fatalf("Acquire %d should succeed", i)
		}
	}
	if m.ActiveCount("x") != 3 {
		t.Fatalf("expected 3 active, got %d", m.ActiveCount("x"))
	}

	m.Release("x", "")
	m.Release("x", "")
	if m.ActiveCount("x") != 1 {
		t.Fatalf("expected 1 active, got %d", m.ActiveCount("x"))
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestManager_RateLimit_Throttles(t *testing.T) {
	m := NewManager(Config{
		Platform:  "limited",
		RateLimit: 1.0, // 1 per second
		RateBurst: 1,
	})

	// First should succeed (burst allows it).
	if !m.Acquire("limited", "") {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	m.Release("limited", "")

	// Immediately after, token bucket is empty.
	if m.Acquire("limited", "") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	// Wait for token refill.
	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire("limited", "") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release("limited", "")
}

func TestManager_RateLimit_BurstAllows(t *testing.T) {
	m := NewManager(Config{
		Platform:  "bursty",
		RateLimit: 10.0,
		RateBurst: 3,
	})

	// Three immediate acquires should succeed (burst = 3).
	for i := range 3 {
		if !m.Acquire("bursty", "") {
			t.Fatalf("Acquire %d should succeed (within burst)", i)
		}
		m.Release("bursty", "")
	}
}

// ---------------------------------------------------------------------------
// Per-team isolation
// ---------------------------------------------------------------------------

func TestManager_ConcurrencyRejectionKeepsRateToken(t *testing.T) {
	// Burst of 2 with a negligible refill rate: the test has exactly two
	// rate tokens to spend.
	m := NewManager(Config{
		Platform:       "tiktok",
		MaxConcurrency: 1,
		RateLimit:      0.001,
		RateBurst:      2,
	})

	if !m.Acquire("tiktok", "") {
		t.Fatal("first acquire should succeed")
	}
	if m.Acquire("tiktok", "") {
		t.Fatal("second acquire should hit the concurrency cap")
	}
	m.Release("tiktok", "")

	// The concurrency rejection above must not have spent the second
	// token.
	if !m.Acquire("tiktok", "") {
		t.Error("acquire after release should succeed on the remaining rate token")
	}
}

func TestManager_TeamRateLimit(t *testing.T) {
	m := NewManager(Config{
		Platform:       "shared",
		MaxConcurrency: 100, // high platform limit
	})

	m.SetTeamConfig(TeamConfig{
		Platform:       "shared",
		TeamID:         "teamA",
		MaxConcurrency: 1,
	})

	// Team A: first dispatch succeeds.
	if !m.Acquire("shared", "teamA") {
		t.Fatal("teamA first Acquire should succeed")
	}
	// Team A: second dispatch blocked.
	if m.Acquire("shared", "teamA") {
		t.Fatal("teamA second Acquire should fail (team max 1)")
	}

	// Team B (no config): should still succeed.
	if !m.Acquire("shared", "teamB") {
		t.Fatal("teamB Acquire should succeed (no team limit)")
	}

	m.Release("shared", "teamA")
	m.Release("shared", "teamB")
}

func TestManager_TeamIsolation(t *testing.T) {
	m := NewManager(Config{
		Platform:       "work",
		MaxConcurrency: 100,
	})

	m.SetTeamConfig(TeamConfig{
		Platform:       "work",
		TeamID:         "teamA",
		MaxConcurrency: 2,
	})
	m.SetTeamConfig(TeamConfig{
		Platform:       "work",
		TeamID:         "teamB",
		MaxConcurrency: 2,
	})

	// Fill teamA slots.
	m.Acquire("work", "teamA")
	m.Acquire("work", "teamA")

	// teamA is maxed.
	if m.Acquire("work", "teamA") {
		t.Fatal("teamA should be blocked at max concurrency")
	}

	// teamB is unaffected.
	if !m.Acquire("work", "teamB") {
		t.Fatal("teamB should not be affected by teamA's limits")
	}

	m.Release("work", "teamA")
	m.Release("work", "teamA")
	m.Release("work", "teamB")
}

func TestManager_TeamActiveCount(t *testing.T) {
	m := NewManager(Config{Platform: "x", MaxConcurrency: 10})
	m.SetTeamConfig(TeamConfig{
		Platform:       "x",
		TeamID:         "t1",
		MaxConcurrency: 5,
	})

	m.Acquire("x", "t1")
	m.Acquire("x", "t1")

	if got := m.TeamActiveCount("x", "t1"); got != 2 {
		t.Fatalf("expected team active 2, got %d", got)
	}

	m.Release("x", "t1")
	if got := m.TeamActiveCount("x", "t1"); got != 1 {
		t.Fatalf("expected team active 1, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetPlatformConfig(t *testing.T) {
	m := NewManager(Config{
		Platform:       "dyn",
		MaxConcurrency: 1,
	})

	m.Acquire("dyn", "")
	if m.Acquire("dyn", "") {
		t.Fatal("should be blocked at concurrency 1")
	}

	// Raise the limit dynamically.
	m.SetPlatformConfig(Config{
		Platform:       "dyn",
		MaxConcurrency: 3,
	})

	// Now should succeed.
	if !m.Acquire("dyn", "") {
		t.Fatal("should succeed after raising concurrency")
	}
	m.Release("dyn", "")
	m.Release("dyn", "")
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(Config{
		Platform:       "concurrent",
		MaxConcurrency: 50,
	})

	var acquired atomic.Int64
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("concurrent", "") {
				acquired.Add(1)
				// Simulate work.
				time.Sleep(time.Millisecond)
				m.Release("concurrent", "")
			}
		}()
	}

	wg.Wait()

	// At least some should have succeeded.
	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}

	// Active should be back to 0.
	if m.ActiveCount("concurrent") != 0 {
		t.Fatalf("expected 0 active after all goroutines, got %d", m.ActiveCount("concurrent"))
	}
}

func TestManager_UnconfiguredPlatform_AlwaysSucceeds(t *testing.T) {
	m := NewManager(Config{
		Platform:       "configured",
		MaxConcurrency: 1,
	})

	// "other" platform has no config, so no limits.
	for range 10 {
		if !m.Acquire("other", "") {
			t.Fatal("unconfigured platform should always allow Acquire")
		}
	}
	for range 10 {
		m.Release("other", "")
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager(Config{
		Platform:       "x",
		MaxConcurrency: 5,
	})

	// Release without Acquire should not go negative.
	m.Release("x", "")
	if m.ActiveCount("x") != 0 {
		t.Fatal("active count should not go below 0")
	}
}
