// Package mysql is the remote report store: the commit target for queued
// reports and the bulk read source for analytics.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS reports (
	id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	local_id      VARCHAR(36)  NOT NULL,
	barangay      VARCHAR(120) NOT NULL,
	description   TEXT         NOT NULL,
	incident_type VARCHAR(80)  NOT NULL,
	category      VARCHAR(80)  NOT NULL DEFAULT '',
	sensitive     BOOLEAN      NOT NULL DEFAULT FALSE,
	lat           DOUBLE       NOT NULL,
	lng           DOUBLE       NOT NULL,
	submitted_by  VARCHAR(128) NOT NULL,
	status        VARCHAR(16)  NOT NULL DEFAULT 'Pending',
	created_at    DATETIME(6)  NOT NULL,
	media_refs    JSON         NULL,
	UNIQUE KEY uq_reports_local_id (local_id),
	KEY idx_reports_created_at (created_at)
)`

// A retried commit for a local id that already landed matches the unique key;
// LAST_INSERT_ID(id) makes the driver report the existing row's id.
const insertReport = `INSERT INTO reports
	(local_id, barangay, description, incident_type, category, sensitive, lat, lng, submitted_by, status, created_at, media_refs)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)`

const selectReports = `SELECT id, local_id, barangay, description, incident_type, category, sensitive,
	lat, lng, submitted_by, status, created_at, media_refs
	FROM reports ORDER BY created_at, id`

// Store implements pipeline.Committer and analytics.ReportSource over MySQL.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects using a go-sql-driver DSN. parseTime is forced on so
// DATETIME columns scan into time.Time.
func Open(dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return New(db), nil
}

// Migrate creates the reports table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create reports table: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CheckReadiness satisfies the shared readiness checker.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.Ping(ctx)
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Commit inserts the report and returns its row id. Committing the same local
// id twice returns the original row id without a second row.
func (s *Store) Commit(ctx context.Context, r domain.OfflineReport) (string, error) {
	media, err := encodeMedia(r.MediaRefs)
	if err != nil {
		return "", err
	}

	res, err := s.db.ExecContext(ctx, insertReport,
		r.LocalID,
		r.Barangay,
		r.Description,
		r.IncidentType,
		r.Category,
		r.Sensitive,
		r.Location.Lat,
		r.Location.Lng,
		r.SubmittedBy,
		string(domain.ReportPending),
		r.CreatedAt.UTC(),
		media,
	)
	if err != nil {
		return "", fmt.Errorf("insert report %s: %w", r.LocalID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("read report id for %s: %w", r.LocalID, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// FetchReports returns every canonical report, oldest first.
func (s *Store) FetchReports(ctx context.Context) ([]domain.Report, error) {
	rows, err := s.db.QueryContext(ctx, selectReports)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []domain.Report
	for rows.Next() {
		var (
			r      domain.Report
			id     int64
			status string
			media  sql.NullString
		)
		if err := rows.Scan(
			&id,
			&r.LocalID,
			&r.Barangay,
			&r.Description,
			&r.IncidentType,
			&r.Category,
			&r.Sensitive,
			&r.Location.Lat,
			&r.Location.Lng,
			&r.SubmittedBy,
			&status,
			&r.Timestamp,
			&media,
		); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.ID = strconv.FormatInt(id, 10)
		r.Status = domain.ReportStatus(status)
		if media.Valid && media.String != "" {
			if err := json.Unmarshal([]byte(media.String), &r.MediaRefs); err != nil {
				return nil, fmt.Errorf("decode media refs for report %d: %w", id, err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

func encodeMedia(refs []string) (any, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("encode media refs: %w", err)
	}
	return string(b), nil
}
