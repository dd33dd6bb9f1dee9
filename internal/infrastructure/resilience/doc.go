/*
Package resilience provides the circuit breaker that guards module region
handlers.

# Overview

The workflow reports code regions while it runs, and every region message
fans out to each loaded module. A module whose handler keeps failing is
skipped for a while instead of slowing down the workflow's injection
channel.

# Usage

	breakers := resilience.NewGroup(resilience.DefaultSettings())

	err := breakers.Execute("regions#1", func() error {
		if !m.RegionStart(name, partID, ts) {
			return errRegionRejected
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// handler skipped
	}

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
