// Package cascade decides how a valve's status change propagates to
// the pumps it feeds. It is pure with respect to the status snapshot
// passed in; the caller supplies current state and persists results.
package cascade

import "farm-control-backend/internal/model"

// PumpSnapshot captures a linked pump and the statuses of every valve
// feeding it, as read inside the caller's transaction.
type PumpSnapshot struct {
	ID     string
	Status string
	// ValveStatuses maps valve id to status for all valves linked to
	// this pump, including the valve currently being changed.
	ValveStatuses map[string]string
}

// Update is a pump status change the caller must apply.
type Update struct {
	PumpID string
	Status string
}

// Propagate computes the pump updates implied by setting the given
// valve to newStatus. Opening a valve unconditionally opens its pumps.
// Closing a valve closes a pump only when every other valve feeding it
// is no longer open. Updates are emitted only when the computed target
// differs from the pump's stored status, so unchanged pumps produce no
// writes and no downstream telemetry. A transition into "changing
// state" propagates nothing.
func Propagate(valveID, newStatus string, pumps []PumpSnapshot) []Update {
	var updates []Update
	for _, pump := range pumps {
		target := pump.Status

		switch newStatus {
		case model.StatusOpen:
			target = model.StatusOpen
		case model.StatusClose:
			allClosed := true
			for peerID, peerStatus := range pump.ValveStatuses {
				if peerID == valveID {
					continue
				}
				if peerStatus == model.StatusOpen {
					allClosed = false
					break
				}
			}
			if allClosed {
				target = model.StatusClose
			}
		}

		if target != pump.Status {
			updates = append(updates, Update{PumpID: pump.ID, Status: target})
		}
	}
	return updates
}
