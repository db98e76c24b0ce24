package broadcast_test

import (
	"testing"

	"github.com/panelkit/runtime/broadcast"
)

func TestStrictPolicy_DeliversImmediately(t *testing.T) {
	sink := &stubSink{}
	pol := broadcast.NewStrictPolicy(sink)

	if err := pol.Deliver("client-1", broadcast.KindPatch, []byte(`{"type":"PATCH"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.writeCount() != 1 {
		t.Errorf("expected 1 write, got %d", sink.writeCount())
	}
	if stats := pol.Stats(); stats.Delivered != 1 || stats.Dropped != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStrictPolicy_NeverDrops(t *testing.T) {
	sink := &stubSink{}
	pol := broadcast.NewStrictPolicy(sink)

	kinds := []broadcast.MessageKind{
		broadcast.KindPatch, broadcast.KindEvent, broadcast.KindView,
		broadcast.KindLifecycle, broadcast.KindResult, broadcast.KindError,
	}
	for _, k := range kinds {
		if err := pol.Deliver("client-1", k, []byte("frame")); err != nil {
			t.Fatalf("unexpected error for kind %s: %v", k, err)
		}
	}

	if stats := pol.Stats(); stats.Dropped != 0 {
		t.Errorf("expected no drops, got %d", stats.Dropped)
	}
}

func TestStrictPolicy_PropagatesSinkError(t *testing.T) {
	sink := &stubSink{failAll: true}
	pol := broadcast.NewStrictPolicy(sink)

	if err := pol.Deliver("client-1", broadcast.KindResult, []byte("frame")); err == nil {
		t.Fatal("expected error from failing sink")
	}
	if stats := pol.Stats(); stats.Errors != 1 {
		t.Errorf("expected Errors=1, got %d", stats.Errors)
	}
}
