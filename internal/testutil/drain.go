package testutil

import (
	"testing"
	"time"

	"github.com/hupe1980/messplanner/core"
)

// Drain collects every event of a run and its terminal error. It fails the
// test when the run does not finish within timeout.
func Drain(t testing.TB, events <-chan core.Event, errs <-chan error, timeout time.Duration) ([]core.Event, error) {
	t.Helper()
	deadline := time.After(timeout)
	var out []core.Event
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("run did not finish within %s", timeout)
		}
	}
	select {
	case err := <-errs:
		return out, err
	case <-deadline:
		t.Fatalf("error channel not closed within %s", timeout)
	}
	return out, nil
}

// FinalTexts returns the text of all final, non-empty events.
func FinalTexts(events []core.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.IsFinalResponse() && ev.Text() != "" {
			out = append(out, ev.Text())
		}
	}
	return out
}
