package managers

import "testing"

func TestEngine_orders_by_asn_then_intraslot_then_insertion(t *testing.T) {
	e := Mk_engine()
	var fired []string

	e.Schedule_at_asn(2, OrderPropagate, "", func(uint64) { fired = append(fired, "2-propagate") })
	e.Schedule_at_asn(1, OrderEndOfSlot, "", func(uint64) { fired = append(fired, "1-end") })
	e.Schedule_at_asn(1, OrderStartOfSlot, "", func(uint64) { fired = append(fired, "1-start") })
	e.Schedule_at_asn(1, OrderStackTask, "", func(uint64) { fired = append(fired, "1-task-a") })
	e.Schedule_at_asn(1, OrderStackTask, "", func(uint64) { fired = append(fired, "1-task-b") })

	if err := e.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"1-start", "1-task-a", "1-task-b", "1-end", "2-propagate"}
	if len(fired) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(fired), fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (full: %v)", i, want[i], fired[i], fired)
		}
	}
}

func TestEngine_schedule_at_asn_panics_on_regression(t *testing.T) {
	e := Mk_engine()
	e.Schedule_at_asn(1, OrderStartOfSlot, "", func(uint64) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected a panic scheduling at/before the current asn")
			}
		}()
		e.Schedule_at_asn(1, OrderStartOfSlot, "", func(uint64) {})
	})
	e.Run()
}

func TestEngine_cancels_prior_tag(t *testing.T) {
	e := Mk_engine()
	count := 0
	e.Schedule_at_asn(5, OrderStartOfSlot, "timer", func(uint64) { count++ })
	e.Schedule_at_asn(3, OrderStartOfSlot, "timer", func(uint64) { count++ })

	if err := e.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the earlier reschedule under the same tag to cancel the first, fired %d times", count)
	}
}

func TestEngine_stop_ends_run_early(t *testing.T) {
	e := Mk_engine()
	ran := 0
	e.Schedule_at_asn(1, OrderStartOfSlot, "", func(uint64) { ran++; e.Stop() })
	e.Schedule_at_asn(2, OrderStartOfSlot, "", func(uint64) { ran++ })

	e.Run()
	if ran != 1 {
		t.Fatalf("expected Stop to prevent the second event from running, ran=%d", ran)
	}
}

func TestEngine_run_recovers_violation(t *testing.T) {
	e := Mk_engine()
	e.Schedule_at_asn(1, OrderStartOfSlot, "", func(uint64) {
		panic(Violation{Reason: "boom"})
	})
	err := e.Run()
	if err == nil {
		t.Fatalf("expected Run to surface the panicked Violation as an error")
	}
}
