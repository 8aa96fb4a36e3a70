// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package router

import "sync"

// DefaultHistoryLimit caps the in-memory event history.
const DefaultHistoryLimit = 1000

// history is a bounded FIFO buffer of processed events. Once the cap is
// exceeded the oldest entries are evicted.
type history struct {
	mu     sync.Mutex
	limit  int
	events []ProcessedEvent
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &history{limit: limit}
}

func (h *history) add(pe ProcessedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, pe)
	if over := len(h.events) - h.limit; over > 0 {
		h.events = append(h.events[:0:0], h.events[over:]...)
	}
}

// list returns up to limit events, most recent first, optionally
// filtered by installation id (0 means all installations).
func (h *history) list(installationID int64, limit int) []ProcessedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > len(h.events) {
		limit = len(h.events)
	}

	out := make([]ProcessedEvent, 0, limit)
	for i := len(h.events) - 1; i >= 0 && len(out) < limit; i-- {
		pe := h.events[i]
		if installationID != 0 && pe.InstallationID != installationID {
			continue
		}
		out = append(out, pe)
	}
	return out
}

// Stats are aggregate processing statistics derived on demand from the
// bounded history. Nothing is persisted.
type Stats struct {
	TotalEvents    int              `json:"total_events"`
	Successful     int              `json:"successful"`
	Failed         int              `json:"failed"`
	SuccessRate    float64          `json:"success_rate"`
	ByType         map[string]int   `json:"by_type"`
	RecentFailures []ProcessedEvent `json:"recent_failures"`
}

const recentFailureCount = 10

func (h *history) stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{ByType: make(map[string]int)}
	for _, pe := range h.events {
		s.TotalEvents++
		s.ByType[pe.Type]++
		if pe.Success {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	if s.TotalEvents > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalEvents)
	}

	for i := len(h.events) - 1; i >= 0 && len(s.RecentFailures) < recentFailureCount; i-- {
		if !h.events[i].Success {
			s.RecentFailures = append(s.RecentFailures, h.events[i])
		}
	}
	return s
}
