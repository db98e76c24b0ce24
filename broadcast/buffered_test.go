package broadcast_test

import (
	"testing"
	"time"

	"github.com/panelkit/runtime/broadcast"
)

func TestBufferedPolicy_DeliversAsynchronously(t *testing.T) {
	sink := &stubSink{}
	pol := broadcast.NewBufferedPolicy(sink, broadcast.BufferedConfig{QueueSize: 4})
	defer pol.Close()

	if err := pol.Deliver("c1", broadcast.KindResult, []byte("frame")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for sink.writeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sink.writeCount() != 1 {
		t.Fatalf("expected 1 write drained, got %d", sink.writeCount())
	}
}

func TestBufferedPolicy_DropsDroppableWhenFull(t *testing.T) {
	sink := &stubSink{failAll: true} // never drains successfully, queue stays full
	pol := broadcast.NewBufferedPolicy(sink, broadcast.BufferedConfig{QueueSize: 1})
	defer pol.Close()

	// First frame occupies the queue slot (drain goroutine may pop it
	// immediately since the sink errors rather than blocks); saturate
	// by sending enough droppable frames that at least one finds the
	// queue full.
	var dropped bool
	for i := 0; i < 1000 && !dropped; i++ {
		_ = pol.Deliver("c1", broadcast.KindPatch, []byte("frame"))
		if pol.Stats().Dropped > 0 {
			dropped = true
		}
	}
	if !dropped {
		t.Fatal("expected at least one dropped patch frame under sustained backpressure")
	}
}

func TestBufferedPolicy_NonDroppableFailsFastWithoutTimeout(t *testing.T) {
	sink := &stubSink{failAll: true}
	pol := broadcast.NewBufferedPolicy(sink, broadcast.BufferedConfig{QueueSize: 1})
	defer pol.Close()

	var sawErr bool
	for i := 0; i < 1000 && !sawErr; i++ {
		if err := pol.Deliver("c1", broadcast.KindResult, []byte("frame")); err == broadcast.ErrQueueFull {
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatal("expected ErrQueueFull for non-droppable frame under sustained backpressure")
	}
}
