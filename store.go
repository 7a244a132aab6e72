package threatlens

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// AlertFilter narrows an alert listing. Zero values mean "any".
type AlertFilter struct {
	Category Category
	Severity Severity
	Status   Status
	Since    time.Time
	Limit    int
}

// AlertStats is the dashboard rollup.
type AlertStats struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"byCategory"`
	BySeverity map[Severity]int `json:"bySeverity"`
	Active     int              `json:"active"`
}

// AlertStore is the persistence sink for alerts. Save assigns identity
// and insertion order; List returns newest-first.
type AlertStore interface {
	SaveAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id string) (*Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error)
	ClearAlerts(ctx context.Context) (int64, error)
	AlertStats(ctx context.Context) (*AlertStats, error)
}

// UserStore persists credential holders.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
}

// FindingStore persists passive-scan findings keyed by scan id.
type FindingStore interface {
	SaveFindings(ctx context.Context, findings []Finding) error
	ListFindings(ctx context.Context, scanID string) ([]Finding, error)
}

// Store is the SQLite-backed implementation of all three stores. Alerts
// are documents: the nested sub-records are stored as JSON columns so
// the schema stays append-friendly.
type Store struct {
	db *sqlx.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS alerts (
	id            TEXT PRIMARY KEY,
	category      TEXT NOT NULL CHECK (category IN
		('SQL_INJECTION','XSS','BRUTE_FORCE','SUSPICIOUS_IP','SCANNER_ACTIVITY','OTHER')),
	severity      TEXT NOT NULL,
	message       TEXT NOT NULL,
	source_ip     TEXT NOT NULL,
	request_path  TEXT NOT NULL,
	payload       TEXT NOT NULL DEFAULT 'N/A',
	status        TEXT NOT NULL DEFAULT 'Active',
	created_at    TIMESTAMP NOT NULL,
	threat_source TEXT NOT NULL,
	analysis      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_category ON alerts (category);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'Developer',
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_findings (
	id          TEXT PRIMARY KEY,
	scan_id     TEXT NOT NULL,
	target_url  TEXT NOT NULL,
	category    TEXT NOT NULL,
	severity    TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	remediation TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_findings_scan_id ON scan_findings (scan_id);
`

// OpenStore opens (creating if needed) the SQLite database at path and
// applies the schema. Use ":memory:" for throwaway stores.
func OpenStore(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// SQLite allows a single writer; serialize access through one
	// connection instead of surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type alertRow struct {
	ID           string    `db:"id"`
	Category     string    `db:"category"`
	Severity     string    `db:"severity"`
	Message      string    `db:"message"`
	SourceIP     string    `db:"source_ip"`
	RequestPath  string    `db:"request_path"`
	Payload      string    `db:"payload"`
	Status       string    `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
	ThreatSource []byte    `db:"threat_source"`
	Analysis     []byte    `db:"analysis"`
}

func (r *alertRow) toAlert() (*Alert, error) {
	a := &Alert{
		ID:          r.ID,
		Category:    Category(r.Category),
		Severity:    Severity(r.Severity),
		Message:     r.Message,
		SourceIP:    r.SourceIP,
		RequestPath: r.RequestPath,
		Payload:     r.Payload,
		Status:      Status(r.Status),
		Timestamp:   r.CreatedAt,
	}
	if err := json.Unmarshal(r.ThreatSource, &a.ThreatSource); err != nil {
		return nil, fmt.Errorf("decode threat source for alert %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.Analysis, &a.Analysis); err != nil {
		return nil, fmt.Errorf("decode analysis for alert %s: %w", r.ID, err)
	}
	return a, nil
}

// SaveAlert validates and durably appends one alert, assigning its id
// when the caller left it empty.
func (s *Store) SaveAlert(ctx context.Context, a *Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	ts, err := json.Marshal(a.ThreatSource)
	if err != nil {
		return fmt.Errorf("encode threat source: %w", err)
	}
	an, err := json.Marshal(a.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts
			(id, category, severity, message, source_ip, request_path, payload, status, created_at, threat_source, analysis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Category), string(a.Severity), a.Message, a.SourceIP,
		a.RequestPath, a.Payload, string(a.Status), a.Timestamp, ts, an)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (*Alert, error) {
	var row alertRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM alerts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select alert %s: %w", id, err)
	}
	return row.toAlert()
}

// ListAlerts returns alerts newest-first, optionally filtered.
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error) {
	query := `SELECT * FROM alerts WHERE 1=1`
	var args []any
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	alerts := make([]*Alert, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toAlert()
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// ClearAlerts removes every alert. Admin-only at the API layer.
func (s *Store) ClearAlerts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts`)
	if err != nil {
		return 0, fmt.Errorf("clear alerts: %w", err)
	}
	return res.RowsAffected()
}

// AlertStats aggregates counts for the dashboard.
func (s *Store) AlertStats(ctx context.Context) (*AlertStats, error) {
	stats := &AlertStats{
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
	}
	type bucket struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	var byCat []bucket
	if err := s.db.SelectContext(ctx, &byCat,
		`SELECT category AS key, COUNT(*) AS count FROM alerts GROUP BY category`); err != nil {
		return nil, fmt.Errorf("alert stats by category: %w", err)
	}
	for _, b := range byCat {
		stats.ByCategory[Category(b.Key)] = b.Count
		stats.Total += b.Count
	}
	var bySev []bucket
	if err := s.db.SelectContext(ctx, &bySev,
		`SELECT severity AS key, COUNT(*) AS count FROM alerts GROUP BY severity`); err != nil {
		return nil, fmt.Errorf("alert stats by severity: %w", err)
	}
	for _, b := range bySev {
		stats.BySeverity[Severity(b.Key)] = b.Count
	}
	if err := s.db.GetContext(ctx, &stats.Active,
		`SELECT COUNT(*) FROM alerts WHERE status = 'Active'`); err != nil {
		return nil, fmt.Errorf("alert stats active: %w", err)
	}
	return stats, nil
}

type userRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r *userRow) toUser() *User {
	return &User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         Role(r.Role),
		CreatedAt:    r.CreatedAt,
	}
}

// CreateUser inserts a new user, assigning an id when absent.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM users WHERE `+where+` = ?`, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return row.toUser(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "username", username)
}

// UpdateUser rewrites a user's mutable profile fields.
func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = ?, email = ?, password_hash = ?, role = ?
		WHERE id = ?`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), u.ID)
	if err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveFindings appends a batch of passive-scan findings.
func (s *Store) SaveFindings(ctx context.Context, findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin findings tx: %w", err)
	}
	defer tx.Rollback()
	for i := range findings {
		f := &findings[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scan_findings
				(id, scan_id, target_url, category, severity, title, description, remediation, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.ScanID, f.TargetURL, f.Category, string(f.Severity),
			f.Title, f.Description, f.Remediation, f.CreatedAt); err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}
	return tx.Commit()
}

// ListFindings returns every finding recorded under one scan id.
func (s *Store) ListFindings(ctx context.Context, scanID string) ([]Finding, error) {
	var findings []Finding
	err := s.db.SelectContext(ctx, &findings, `
		SELECT * FROM scan_findings WHERE scan_id = ? ORDER BY created_at`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list findings for scan %s: %w", scanID, err)
	}
	return findings, nil
}
