package session

import (
	"sync/atomic"

	"LightSpeedArena/internal/prediction"
)

// Stats counts session activity. Safe for concurrent use.
type Stats struct {
	InputsSent        atomic.Int64
	InputsRateLimited atomic.Int64
	SnapshotsApplied  atomic.Int64
	SnapshotsStale    atomic.Int64
	DecodeFailures    atomic.Int64
	ReconnectAttempts atomic.Int64
	ReconcileAdopted  atomic.Int64
	ReconcileKept     atomic.Int64
	ReconcileReplayed atomic.Int64
}

func (s *Stats) recordReconcile(r prediction.Result) {
	switch r.Outcome {
	case prediction.OutcomeAdopted:
		s.ReconcileAdopted.Add(1)
	case prediction.OutcomeWithinTolerance:
		s.ReconcileKept.Add(1)
	case prediction.OutcomeReplayed:
		s.ReconcileReplayed.Add(1)
	}
}

// Snapshot returns a read-only copy for logging.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"inputs_sent":         s.InputsSent.Load(),
		"inputs_rate_limited": s.InputsRateLimited.Load(),
		"snapshots_applied":   s.SnapshotsApplied.Load(),
		"snapshots_stale":     s.SnapshotsStale.Load(),
		"decode_failures":     s.DecodeFailures.Load(),
		"reconnect_attempts":  s.ReconnectAttempts.Load(),
		"reconcile_adopted":   s.ReconcileAdopted.Load(),
		"reconcile_kept":      s.ReconcileKept.Load(),
		"reconcile_replayed":  s.ReconcileReplayed.Load(),
	}
}
