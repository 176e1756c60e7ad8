package domain

import (
	"context"
	"testing"
	"time"
)

func TestTerminalGuards(t *testing.T) {
	t.Parallel()

	session := NewSession()
	session.Update(func(st *SessionState) {
		st.SetPhase(PhaseExtracting)
		st.Complete(map[string]int{"products": 3})
	})

	view := session.Update(func(st *SessionState) {
		st.SetPhase(PhaseDiscovering)
		st.Fail("too late")
		st.IncrementExtracted()
		st.SetMetrics(Metrics{PagesPerMinute: 99})
		st.Complete(map[string]int{"products": 7})
	})

	if view.Phase != PhaseCompleted {
		t.Fatalf("terminal state must be sticky, got %s", view.Phase)
	}
	if view.Progress.EntitiesFound["products"] != 3 {
		t.Fatalf("final stats changed: %+v", view.Progress.EntitiesFound)
	}
	if view.Progress.PagesExtracted != 0 || view.Metrics.PagesPerMinute != 0 {
		t.Fatal("counters moved after terminal state")
	}
	if view.Error != "" {
		t.Fatalf("completed session acquired an error: %q", view.Error)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	t.Parallel()

	session := NewSession()
	session.Update(func(st *SessionState) {
		st.SetPages([]Page{{URL: "https://acme.io/a"}})
	})

	view := session.Snapshot()
	view.Pages[0].URL = "mutated"
	view.Progress.EntitiesFound["hacked"] = 1

	fresh := session.Snapshot()
	if fresh.Pages[0].URL != "https://acme.io/a" {
		t.Fatal("snapshot pages share memory with the session")
	}
	if len(fresh.Progress.EntitiesFound) != 0 {
		t.Fatal("snapshot map shares memory with the session")
	}
}

func TestSubscribeSeesUpdatesAndClosesOnTerminal(t *testing.T) {
	t.Parallel()

	session := NewSession()
	views := session.Subscribe(context.Background())

	first := <-views
	if first.Phase != PhaseIdle {
		t.Fatalf("expected initial idle view, got %s", first.Phase)
	}

	session.Update(func(st *SessionState) { st.SetPhase(PhaseDiscovering) })
	session.Update(func(st *SessionState) { st.Fail("boom") })

	var last SessionView
	for view := range views {
		last = view
	}
	if last.Phase != PhaseError || last.Error != "boom" {
		t.Fatalf("expected terminal error view, got %+v", last)
	}
}

func TestSubscribeOnTerminalSessionClosesImmediately(t *testing.T) {
	t.Parallel()

	session := NewSession()
	session.Update(func(st *SessionState) { st.Fail("gone") })

	views := session.Subscribe(context.Background())
	view, ok := <-views
	if !ok || view.Phase != PhaseError {
		t.Fatalf("expected one terminal view, got ok=%v %+v", ok, view)
	}
	if _, ok := <-views; ok {
		t.Fatal("channel must be closed after the terminal view")
	}
}

func TestSubscribeHonorsContextCancel(t *testing.T) {
	t.Parallel()

	session := NewSession()
	ctx, cancel := context.WithCancel(context.Background())
	views := session.Subscribe(ctx)
	<-views

	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-views:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after context cancel")
		}
	}
}
