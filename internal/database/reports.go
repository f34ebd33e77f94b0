package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snarg/podcheck/internal/report"
)

// ErrNotFound is returned when no report matches.
var ErrNotFound = errors.New("report not found")

// ReportRecord is a stored report with its delivery metadata.
type ReportRecord struct {
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	CreatedAt  time.Time       `json:"created_at"`
	AudioKey   string          `json:"audio_key,omitempty"`
	Report     report.Report   `json:"report"`
	Moderation json.RawMessage `json:"moderation,omitempty"`
}

// ReportFilter selects a page of reports, newest first.
type ReportFilter struct {
	Email  string
	Limit  int
	Offset int
}

// ReportStore persists reports. Both *DB and *MemoryStore implement it.
type ReportStore interface {
	InsertReport(ctx context.Context, rec *ReportRecord) error
	GetReport(ctx context.Context, id string) (*ReportRecord, error)
	LatestReport(ctx context.Context) (*ReportRecord, error)
	ListReports(ctx context.Context, f ReportFilter) ([]ReportRecord, int, error)
}

const reportColumns = `id, email, created_at, audio_key, episode_name, risk_score,
	flagged_content, misinformation_content, transcript, report_timestamp, moderation`

// InsertReport stores rec. CreatedAt is set by the database when zero.
func (db *DB) InsertReport(ctx context.Context, rec *ReportRecord) error {
	var createdAt *time.Time
	if !rec.CreatedAt.IsZero() {
		createdAt = &rec.CreatedAt
	}
	r := rec.Report
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO reports (id, email, created_at, audio_key, episode_name, risk_score,
			flagged_content, misinformation_content, transcript, report_timestamp, moderation)
		VALUES ($1, $2, COALESCE($3, now()), $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		rec.ID, rec.Email, createdAt, rec.AudioKey, r.EpisodeName, r.RiskScore,
		r.FlaggedContent, r.MisinformationContent, r.Transcript, r.Timestamp, nullJSON(rec.Moderation),
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport returns the report with the given ID.
func (db *DB) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	return scanReport(row)
}

// LatestReport returns the most recently stored report.
func (db *DB) LatestReport(ctx context.Context) (*ReportRecord, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC LIMIT 1`)
	return scanReport(row)
}

// ListReports returns a page of reports and the total matching count.
func (db *DB) ListReports(ctx context.Context, f ReportFilter) ([]ReportRecord, int, error) {
	limit, offset := clampPage(f.Limit, f.Offset)
	email := pqString(f.Email)

	var total int
	if err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM reports WHERE ($1::text IS NULL OR email = $1)`, email,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `SELECT `+reportColumns+` FROM reports
		WHERE ($1::text IS NULL OR email = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, email, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := []ReportRecord{}
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	return out, total, nil
}

func scanReport(row pgx.Row) (*ReportRecord, error) {
	var (
		rec        ReportRecord
		moderation []byte
	)
	r := &rec.Report
	err := row.Scan(&rec.ID, &rec.Email, &rec.CreatedAt, &rec.AudioKey, &r.EpisodeName, &r.RiskScore,
		&r.FlaggedContent, &r.MisinformationContent, &r.Transcript, &r.Timestamp, &moderation)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	if len(moderation) > 0 {
		rec.Moderation = moderation
	}
	return &rec, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
