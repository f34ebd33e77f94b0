package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/podcheck/internal/database"
	"github.com/snarg/podcheck/internal/report"
	"github.com/snarg/podcheck/internal/storage"
)

// presignStore wraps a LocalStore and hands out a fixed URL.
type presignStore struct {
	*storage.LocalStore
	url string
}

func (p presignStore) URL(ctx context.Context, key string) (string, error) { return p.url, nil }

func seedStore(t *testing.T, n int) *database.MemoryStore {
	t.Helper()
	store := database.NewMemoryStore(10)
	base := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		email := "a@example.com"
		if i%2 == 1 {
			email = "b@example.com"
		}
		err := store.InsertReport(context.Background(), &database.ReportRecord{
			ID:        fmt.Sprintf("r%d", i),
			Email:     email,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Report:    report.Report{EpisodeName: fmt.Sprintf("Episode %d - test", i), RiskScore: i * 10},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func serveReports(h *ReportsHandler, method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/api/review", h.Review)
	r.Get("/api/v1/reports", h.List)
	r.Get("/api/v1/reports/latest", h.Latest)
	r.Get("/api/v1/reports/{id}", h.Get)
	r.Get("/api/v1/reports/{id}/audio", h.Audio)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestReports_Review(t *testing.T) {
	t.Run("empty_store_404", func(t *testing.T) {
		h := NewReportsHandler(database.NewMemoryStore(5), nil, zerolog.Nop())
		rec := serveReports(h, "GET", "/api/review")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("returns_latest_report_fields", func(t *testing.T) {
		h := NewReportsHandler(seedStore(t, 3), nil, zerolog.Nop())
		rec := serveReports(h, "GET", "/api/review")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var rep report.Report
		if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
			t.Fatal(err)
		}
		if rep.EpisodeName != "Episode 2 - test" || rep.RiskScore != 20 {
			t.Errorf("got %+v", rep)
		}
	})
}

func TestReports_GetAndLatest(t *testing.T) {
	h := NewReportsHandler(seedStore(t, 2), nil, zerolog.Nop())

	rec := serveReports(h, "GET", "/api/v1/reports/r0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got ReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "r0" || got.Email != "a@example.com" || got.HasAudio {
		t.Errorf("got %+v", got)
	}

	rec = serveReports(h, "GET", "/api/v1/reports/latest")
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "r1" {
		t.Errorf("latest = %q, want r1", got.ID)
	}

	rec = serveReports(h, "GET", "/api/v1/reports/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestReports_List(t *testing.T) {
	h := NewReportsHandler(seedStore(t, 5), nil, zerolog.Nop())

	t.Run("paged", func(t *testing.T) {
		rec := serveReports(h, "GET", "/api/v1/reports?limit=2&offset=1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp ReportListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Total != 5 || len(resp.Reports) != 2 {
			t.Fatalf("total=%d len=%d", resp.Total, len(resp.Reports))
		}
		if resp.Reports[0].ID != "r3" || resp.Reports[1].ID != "r2" {
			t.Errorf("order = %s, %s", resp.Reports[0].ID, resp.Reports[1].ID)
		}
	})

	t.Run("email_filter", func(t *testing.T) {
		rec := serveReports(h, "GET", "/api/v1/reports?email=b%40example.com")
		var resp ReportListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Total != 2 {
			t.Errorf("total = %d, want 2", resp.Total)
		}
	})

	t.Run("invalid_limit", func(t *testing.T) {
		rec := serveReports(h, "GET", "/api/v1/reports?limit=abc")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestReports_Audio(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	local := storage.NewLocalStore(dir)
	store := database.NewMemoryStore(5)
	key := "2025-03-09/withaudio.mp3"
	if err := local.Save(ctx, key, []byte("ID3 audio bytes"), "audio/mpeg"); err != nil {
		t.Fatal(err)
	}
	store.InsertReport(ctx, &database.ReportRecord{ID: "withaudio", AudioKey: key})
	store.InsertReport(ctx, &database.ReportRecord{ID: "noaudio"})

	t.Run("streams_local", func(t *testing.T) {
		h := NewReportsHandler(store, local, zerolog.Nop())
		rec := serveReports(h, "GET", "/api/v1/reports/withaudio/audio")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
		if rec.Body.String() != "ID3 audio bytes" {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("redirects_presigned", func(t *testing.T) {
		h := NewReportsHandler(store, presignStore{LocalStore: local, url: "https://bucket.example/signed"}, zerolog.Nop())
		rec := serveReports(h, "GET", "/api/v1/reports/withaudio/audio")
		if rec.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "https://bucket.example/signed" {
			t.Errorf("Location = %q", loc)
		}
	})

	t.Run("no_audio_404", func(t *testing.T) {
		h := NewReportsHandler(store, local, zerolog.Nop())
		rec := serveReports(h, "GET", "/api/v1/reports/noaudio/audio")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("missing_file_404", func(t *testing.T) {
		store.InsertReport(ctx, &database.ReportRecord{ID: "gone", AudioKey: "2025-03-09/gone.mp3"})
		h := NewReportsHandler(store, local, zerolog.Nop())
		rec := serveReports(h, "GET", "/api/v1/reports/gone/audio")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("archive_disabled_404", func(t *testing.T) {
		h := NewReportsHandler(store, nil, zerolog.Nop())
		rec := serveReports(h, "GET", "/api/v1/reports/withaudio/audio")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}
