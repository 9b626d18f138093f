package monitor

import (
	"github.com/kmorrow/spreadwatch/internal/model"
)

// Status is the read-only health view of a running monitor.
type Status struct {
	Running               bool  `json:"running"`
	Connected             bool  `json:"connected"`
	MarketsTracked        int   `json:"markets_tracked"`
	MessagesReceived      int64 `json:"messages_received"`
	PollsCompleted        int64 `json:"polls_completed"`
	SnapshotsRecorded     int64 `json:"snapshots_recorded"`
	OpportunitiesDetected int64 `json:"opportunities_detected"`
	ActiveOpportunities   int   `json:"active_opportunities"`
}

// Status returns current counters. Safe to call from any goroutine.
func (m *Monitor) Status() Status {
	return Status{
		Running:               m.running.Load(),
		Connected:             m.feed.IsConnected(),
		MarketsTracked:        m.table.Len(),
		MessagesReceived:      m.feed.MessagesReceived(),
		PollsCompleted:        m.pollsCompleted.Load(),
		SnapshotsRecorded:     m.snapshotsRecorded.Load(),
		OpportunitiesDetected: m.opportunitiesDetected.Load(),
		ActiveOpportunities:   m.table.ActiveOpportunities(),
	}
}

// CurrentSpreads returns the ranked spread view of all valid-price
// markets, widest spread first.
func (m *Monitor) CurrentSpreads() []model.SpreadEntry {
	return m.table.CurrentSpreads(m.detector)
}
