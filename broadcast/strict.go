package broadcast

// StrictPolicy delivers every frame synchronously through sink,
// blocking the caller on a slow client rather than dropping anything.
// Suited to sinks with their own bounded buffering (e.g. a channel-backed
// Sink), where StrictPolicy's job is only to report backpressure as an
// error rather than decide what to drop.
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a policy that delivers every frame through sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink, stats: newStatsRecorder()}
}

// Deliver writes frame to the sink unconditionally.
func (p *StrictPolicy) Deliver(_ string, _ MessageKind, frame []byte) error {
	if err := p.sink.Write(frame); err != nil {
		p.stats.incErrors()
		return err
	}
	p.stats.incDelivered()
	return nil
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats { return p.stats.snapshot() }

// Close is a no-op; StrictPolicy owns no background resources.
func (p *StrictPolicy) Close() error { return nil }

var _ Policy = (*StrictPolicy)(nil)
