// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockAdvance(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}

	clock.Advance(5 * time.Second)
	if got := clock.Since(epoch); got != 5*time.Second {
		t.Errorf("Since(epoch) = %v, want 5s", got)
	}

	clock.Set(epoch.Add(-time.Hour))
	if got := clock.Since(epoch); got != -time.Hour {
		t.Errorf("Since(epoch) after Set = %v, want -1h", got)
	}
}

func TestFakeClockConcurrentAdvance(t *testing.T) {
	clock := Fake(epoch)
	var group sync.WaitGroup
	for range 50 {
		group.Add(1)
		go func() {
			defer group.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	group.Wait()

	if got := clock.Since(epoch); got != 50*time.Second {
		t.Errorf("Since(epoch) = %v, want 50s", got)
	}
}

func TestRealClockMonotonic(t *testing.T) {
	clock := Real()
	start := clock.Now()
	if elapsed := clock.Since(start); elapsed < 0 {
		t.Errorf("Since(start) = %v, want >= 0", elapsed)
	}
}
