package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/snarg/podcheck/internal/report"
)

func rec(id, email string) *ReportRecord {
	return &ReportRecord{ID: id, Email: email, Report: report.Report{EpisodeName: "Episode " + id}}
}

func TestMemoryStore_Empty(t *testing.T) {
	m := NewMemoryStore(3)
	ctx := context.Background()

	if _, err := m.LatestReport(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestReport err = %v, want ErrNotFound", err)
	}
	if _, err := m.GetReport(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReport err = %v, want ErrNotFound", err)
	}
	list, total, err := m.ListReports(ctx, ReportFilter{})
	if err != nil || total != 0 || list == nil || len(list) != 0 {
		t.Errorf("ListReports = %v, %d, %v; want empty non-nil slice", list, total, err)
	}
}

func TestMemoryStore_LatestAndGet(t *testing.T) {
	m := NewMemoryStore(3)
	fixed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := m.InsertReport(ctx, rec(id, "x@example.com")); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := m.LatestReport(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != "b" {
		t.Errorf("latest = %q, want b", latest.ID)
	}
	if !latest.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", latest.CreatedAt, fixed)
	}

	got, err := m.GetReport(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Report.EpisodeName != "Episode a" {
		t.Errorf("EpisodeName = %q", got.Report.EpisodeName)
	}

	// returned records are copies
	got.Report.EpisodeName = "mutated"
	again, _ := m.GetReport(ctx, "a")
	if again.Report.EpisodeName != "Episode a" {
		t.Error("GetReport returned a reference into the ring")
	}
}

func TestMemoryStore_RingEvictsOldest(t *testing.T) {
	m := NewMemoryStore(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		m.InsertReport(ctx, rec(fmt.Sprint(i), ""))
	}

	if _, err := m.GetReport(ctx, "0"); !errors.Is(err, ErrNotFound) {
		t.Error("oldest report should have been evicted")
	}
	if _, err := m.GetReport(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Error("second oldest report should have been evicted")
	}

	list, total, _ := m.ListReports(ctx, ReportFilter{})
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	var ids []string
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	if fmt.Sprint(ids) != "[4 3 2]" {
		t.Errorf("ids = %v, want newest first [4 3 2]", ids)
	}
}

func TestMemoryStore_ListPagingAndFilter(t *testing.T) {
	m := NewMemoryStore(10)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		email := "a@example.com"
		if i%2 == 1 {
			email = "b@example.com"
		}
		m.InsertReport(ctx, rec(fmt.Sprint(i), email))
	}

	tests := []struct {
		name    string
		filter  ReportFilter
		wantIDs string
		total   int
	}{
		{"first_page", ReportFilter{Limit: 2}, "[5 4]", 6},
		{"second_page", ReportFilter{Limit: 2, Offset: 2}, "[3 2]", 6},
		{"past_end", ReportFilter{Limit: 2, Offset: 10}, "[]", 6},
		{"by_email", ReportFilter{Email: "b@example.com"}, "[5 3 1]", 3},
		{"by_email_paged", ReportFilter{Email: "a@example.com", Limit: 1, Offset: 1}, "[2]", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := m.ListReports(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			ids := []string{}
			for _, r := range list {
				ids = append(ids, r.ID)
			}
			if fmt.Sprint(ids) != tt.wantIDs {
				t.Errorf("ids = %v, want %s", ids, tt.wantIDs)
			}
			if total != tt.total {
				t.Errorf("total = %d, want %d", total, tt.total)
			}
		})
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, defaultListLimit, 0},
		{500, -3, maxListLimit, 0},
		{7, 14, 7, 14},
	}
	for _, tt := range tests {
		l, o := clampPage(tt.limit, tt.offset)
		if l != tt.wantLimit || o != tt.wantOffset {
			t.Errorf("clampPage(%d, %d) = %d, %d; want %d, %d", tt.limit, tt.offset, l, o, tt.wantLimit, tt.wantOffset)
		}
	}
}

var (
	_ ReportStore = (*MemoryStore)(nil)
	_ ReportStore = (*DB)(nil)
)
