package metrics

import "testing"

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("test-version")

	c.IncPanelCreated()
	c.IncPanelDestroyed()
	c.IncPanelErrored()
	c.IncInvocationStarted()
	c.IncInvocationSucceeded()
	c.IncInvocationFailed("TIMEOUT")
	c.IncInvocationFailed("TIMEOUT")
	c.IncInvocationFailed("PERMISSION_DENIED")
	c.IncInvocationSuspended()
	c.IncSuspensionOpened()
	c.IncSuspensionResolved()
	c.IncSuspensionTimedOut()
	c.IncSuspensionCancelled()
	c.IncExtensionCallSuccess()
	c.IncExtensionCallFailure()
	c.IncWSClientConnected()
	c.IncWSMessageSent()
	c.IncWSMessageDropped()

	s := c.Snapshot(SandboxGauges{})

	if s.PanelsCreated != 1 || s.PanelsDestroyed != 1 || s.PanelsErrored != 1 {
		t.Errorf("panel counters wrong: %+v", s)
	}
	if s.InvocationsStarted != 1 || s.InvocationsSucceeded != 1 || s.InvocationsFailed != 3 || s.InvocationsSuspended != 1 {
		t.Errorf("invocation counters wrong: %+v", s)
	}
	if s.ErrorsByKind["TIMEOUT"] != 2 || s.ErrorsByKind["PERMISSION_DENIED"] != 1 {
		t.Errorf("errorsByKind wrong: %+v", s.ErrorsByKind)
	}
	if s.SuspensionsOpened != 1 || s.SuspensionsResolved != 1 || s.SuspensionsTimedOut != 1 || s.SuspensionsCancelled != 1 {
		t.Errorf("suspension counters wrong: %+v", s)
	}
	if s.ExtensionCallSuccess != 1 || s.ExtensionCallFailure != 1 {
		t.Errorf("extension counters wrong: %+v", s)
	}
	if s.WSClientsConnected != 1 || s.WSMessagesSent != 1 || s.WSMessagesDropped != 1 {
		t.Errorf("ws counters wrong: %+v", s)
	}
}

func TestCollector_SandboxGaugesAbsorbed(t *testing.T) {
	c := NewCollector("v1")
	s := c.Snapshot(SandboxGauges{ActiveInstances: 2, AvailableInstances: 6, CacheHitRate: 0.75, TotalExecutions: 40})

	if s.SandboxActiveInstances != 2 || s.SandboxAvailableInstances != 6 {
		t.Errorf("gauge absorption wrong: %+v", s)
	}
	if s.SandboxCacheHitRate != 0.75 || s.SandboxTotalExecutions != 40 {
		t.Errorf("gauge absorption wrong: %+v", s)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("v1")
	c.IncPanelCreated()

	s1 := c.Snapshot(SandboxGauges{})
	c.IncPanelCreated()
	c.IncPanelCreated()

	if s1.PanelsCreated != 1 {
		t.Errorf("s1.PanelsCreated = %d, want 1 (snapshot should be frozen)", s1.PanelsCreated)
	}

	s2 := c.Snapshot(SandboxGauges{})
	if s2.PanelsCreated != 3 {
		t.Errorf("s2.PanelsCreated = %d, want 3", s2.PanelsCreated)
	}
}

func TestCollector_ErrorsByKindIsolation(t *testing.T) {
	c := NewCollector("v1")
	c.IncInvocationFailed("TIMEOUT")

	s := c.Snapshot(SandboxGauges{})
	s.ErrorsByKind["TIMEOUT"] = 999
	s.ErrorsByKind["INJECTED"] = 1

	s2 := c.Snapshot(SandboxGauges{})
	if s2.ErrorsByKind["TIMEOUT"] != 1 {
		t.Errorf("ErrorsByKind[TIMEOUT] = %d, want 1 (collector should be isolated)", s2.ErrorsByKind["TIMEOUT"])
	}
	if _, exists := s2.ErrorsByKind["INJECTED"]; exists {
		t.Error("ErrorsByKind should not contain a key injected into a prior snapshot")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	c.IncPanelCreated()
	c.IncPanelDestroyed()
	c.IncPanelErrored()
	c.IncInvocationStarted()
	c.IncInvocationSucceeded()
	c.IncInvocationFailed("TIMEOUT")
	c.IncInvocationSuspended()
	c.IncSuspensionOpened()
	c.IncSuspensionResolved()
	c.IncSuspensionTimedOut()
	c.IncSuspensionCancelled()
	c.IncExtensionCallSuccess()
	c.IncExtensionCallFailure()
	c.IncWSClientConnected()
	c.IncWSMessageSent()
	c.IncWSMessageDropped()

	s := c.Snapshot(SandboxGauges{ActiveInstances: 1})
	if s.PanelsCreated != 0 {
		t.Errorf("nil collector snapshot PanelsCreated = %d, want 0", s.PanelsCreated)
	}
	if s.SandboxActiveInstances != 1 {
		t.Errorf("nil collector should still absorb passed-in gauges, got %+v", s)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("v1")
	const goroutines = 10
	const iterations = 1000

	done := make(chan struct{}, goroutines)
	for range goroutines {
		go func() {
			for range iterations {
				c.IncPanelCreated()
				c.IncInvocationFailed("TIMEOUT")
			}
			done <- struct{}{}
		}()
	}
	for range goroutines {
		<-done
	}

	s := c.Snapshot(SandboxGauges{})
	want := int64(goroutines * iterations)
	if s.PanelsCreated != want {
		t.Errorf("PanelsCreated = %d, want %d", s.PanelsCreated, want)
	}
	if s.ErrorsByKind["TIMEOUT"] != want {
		t.Errorf("ErrorsByKind[TIMEOUT] = %d, want %d", s.ErrorsByKind["TIMEOUT"], want)
	}
}
