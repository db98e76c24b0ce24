// Package broadcast governs how WebSocket fan-out frames are delivered
// to a single client under backpressure.
//
// Per spec §6: state patches and custom events are reactive and may be
// coalesced or dropped under backpressure (a client that reconnects
// gets a fresh snapshot); trigger results and error frames are
// request/response replies and must never be silently dropped.
package broadcast

import "sync"

// MessageKind classifies a frame for backpressure purposes.
type MessageKind string

const (
	// KindPatch is a state mutation fan-out (PATCH).
	KindPatch MessageKind = "patch"
	// KindEvent is a custom panel event (EVENT).
	KindEvent MessageKind = "event"
	// KindView is a view command fan-out (VIEW).
	KindView MessageKind = "view"
	// KindLifecycle is a connection lifecycle frame (CONNECTED, CLOSED, PONG).
	KindLifecycle MessageKind = "lifecycle"
	// KindResult is a trigger reply (RESULT).
	KindResult MessageKind = "result"
	// KindError is an error reply (ERROR).
	KindError MessageKind = "error"
)

// droppableKinds are frames a policy may discard when a client falls
// behind. Results and errors are replies to a specific client request
// and are never droppable.
var droppableKinds = map[MessageKind]bool{
	KindPatch:     true,
	KindEvent:     true,
	KindView:      true,
	KindLifecycle: true,
}

// IsDroppable reports whether kind may be dropped under backpressure.
func IsDroppable(kind MessageKind) bool {
	return droppableKinds[kind]
}

// KindForMessageType maps a wire message type (as sent by panelmgr.Client.Send)
// to its MessageKind.
func KindForMessageType(messageType string) MessageKind {
	switch messageType {
	case "PATCH":
		return KindPatch
	case "EVENT":
		return KindEvent
	case "VIEW":
		return KindView
	case "RESULT":
		return KindResult
	case "ERROR":
		return KindError
	default:
		// CONNECTED, CLOSED, PONG, and anything unrecognized are
		// best-effort lifecycle frames.
		return KindLifecycle
	}
}

// Sink accepts a single encoded frame for delivery to one client.
type Sink interface {
	Write(frame []byte) error
}

// Policy governs delivery of frames to one client's Sink.
type Policy interface {
	// Deliver attempts to deliver frame of the given kind to clientID.
	// Implementations may drop droppable kinds under backpressure
	// instead of returning an error.
	Deliver(clientID string, kind MessageKind, frame []byte) error
	// Stats returns an atomic snapshot of delivery statistics.
	Stats() Stats
	// Close releases policy resources.
	Close() error
}

// Stats represents policy observability metrics.
type Stats struct {
	Delivered     int64
	Dropped       int64
	DroppedByKind map[MessageKind]int64
	Errors        int64
}

// statsRecorder is a thread-safe stats accumulator shared by the
// policy implementations in this package.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{stats: Stats{DroppedByKind: make(map[MessageKind]int64)}}
}

func (r *statsRecorder) incDelivered() {
	r.mu.Lock()
	r.stats.Delivered++
	r.mu.Unlock()
}

func (r *statsRecorder) incDropped(kind MessageKind) {
	r.mu.Lock()
	r.stats.Dropped++
	r.stats.DroppedByKind[kind]++
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.DroppedByKind = make(map[MessageKind]int64, len(r.stats.DroppedByKind))
	for k, v := range r.stats.DroppedByKind {
		s.DroppedByKind[k] = v
	}
	return s
}
