package context

import "testing"

func TestThresholdsFireInOrderOnce(t *testing.T) {
	var fired []int
	handoffs := 0

	w := New(1000, func(agentID string, threshold int, message string) {
		fired = append(fired, threshold)
	}, func(agentID string) {
		handoffs++
	})
	w.Register("a1")

	w.Update("a1", 450) // 45% -> fires 40
	w.Update("a1", 460) // still in 40 band, no new fire
	w.Update("a1", 550) // 55% -> fires 50
	w.Update("a1", 800) // 80% -> fires 60, 70, 75 and handoff

	want := []int{40, 50, 60, 70, 75}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i, v := range want {
		if fired[i] != v {
			t.Errorf("fired[%d] = %d, want %d", i, fired[i], v)
		}
	}
	if handoffs != 1 {
		t.Errorf("handoffs = %d, want 1", handoffs)
	}
	if !w.NeedsHandoff("a1") {
		t.Errorf("expected NeedsHandoff true")
	}
}

func TestResetClearsLatches(t *testing.T) {
	count := 0
	w := New(1000, func(string, int, string) { count++ }, nil)
	w.Register("a1")
	w.Update("a1", 900)
	if count == 0 {
		t.Fatalf("expected thresholds fired before reset")
	}

	w.Reset("a1")
	count = 0
	w.Update("a1", 450)
	if count != 1 {
		t.Errorf("expected threshold 40 to re-fire after reset, got %d fires", count)
	}
}

func TestHandoffFiresExactlyOncePerLifetime(t *testing.T) {
	handoffs := 0
	w := New(1000, nil, func(string) { handoffs++ })
	w.Register("a1")
	w.Update("a1", 900)
	w.Update("a1", 950)
	w.Update("a1", 999)
	if handoffs != 1 {
		t.Errorf("handoffs = %d, want 1", handoffs)
	}
}
