// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package router

import (
	"fmt"
	"testing"
)

func TestHistoryEvictsOldestBeyondLimit(t *testing.T) {
	h := newHistory(1000)
	for i := 0; i < 1001; i++ {
		h.add(ProcessedEvent{ID: fmt.Sprintf("ev-%d", i), Type: EventPush, Success: true})
	}

	all := h.list(0, 0)
	if len(all) != 1000 {
		t.Fatalf("history holds %d events, want 1000", len(all))
	}
	// Most recent first; the oldest entry (ev-0) is gone.
	if all[0].ID != "ev-1000" {
		t.Errorf("newest = %s, want ev-1000", all[0].ID)
	}
	if all[len(all)-1].ID != "ev-1" {
		t.Errorf("oldest = %s, want ev-1 (ev-0 evicted)", all[len(all)-1].ID)
	}
}

func TestHistoryListFilterAndLimit(t *testing.T) {
	h := newHistory(100)
	for i := 0; i < 10; i++ {
		id := int64(555)
		if i%2 == 0 {
			id = 777
		}
		h.add(ProcessedEvent{ID: fmt.Sprintf("ev-%d", i), InstallationID: id})
	}

	got := h.list(555, 0)
	if len(got) != 5 {
		t.Fatalf("filtered list has %d events, want 5", len(got))
	}
	for _, pe := range got {
		if pe.InstallationID != 555 {
			t.Errorf("event %s belongs to installation %d", pe.ID, pe.InstallationID)
		}
	}
	if got[0].ID != "ev-9" {
		t.Errorf("newest filtered = %s, want ev-9", got[0].ID)
	}

	capped := h.list(0, 3)
	if len(capped) != 3 || capped[0].ID != "ev-9" || capped[2].ID != "ev-7" {
		t.Errorf("capped list = %v", capped)
	}
}

func TestHistoryStats(t *testing.T) {
	h := newHistory(100)
	h.add(ProcessedEvent{Type: EventPush, Success: true})
	h.add(ProcessedEvent{Type: EventPush, Success: true})
	h.add(ProcessedEvent{Type: EventPullRequest, Success: true})
	h.add(ProcessedEvent{Type: EventIssues, Error: "boom"})

	s := h.stats()
	if s.TotalEvents != 4 || s.Successful != 3 || s.Failed != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.SuccessRate != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", s.SuccessRate)
	}
	if s.ByType[EventPush] != 2 || s.ByType[EventPullRequest] != 1 {
		t.Errorf("ByType = %v", s.ByType)
	}
	if len(s.RecentFailures) != 1 || s.RecentFailures[0].Error != "boom" {
		t.Errorf("RecentFailures = %v", s.RecentFailures)
	}
}

func TestHistoryStatsEmpty(t *testing.T) {
	s := newHistory(10).stats()
	if s.TotalEvents != 0 || s.SuccessRate != 0 {
		t.Errorf("stats = %+v, want zero values", s)
	}
}

func TestHistoryRecentFailuresCapped(t *testing.T) {
	h := newHistory(100)
	for i := 0; i < 15; i++ {
		h.add(ProcessedEvent{ID: fmt.Sprintf("ev-%d", i), Error: "fail"})
	}

	s := h.stats()
	if len(s.RecentFailures) != recentFailureCount {
		t.Fatalf("RecentFailures = %d, want %d", len(s.RecentFailures), recentFailureCount)
	}
	if s.RecentFailures[0].ID != "ev-14" {
		t.Errorf("newest failure = %s", s.RecentFailures[0].ID)
	}
}
