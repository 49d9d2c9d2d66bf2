package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Poll session states.
const (
	PollOpen       = "open"
	PollClaimed    = "claimed"
	PollCompleted  = "completed"
	PollSuperseded = "superseded"
)

// Ledger records command runs and poll sessions in sqlite or Postgres.
type Ledger struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	dialect string
}

var _ ports.RunLedger = (*Ledger)(nil)

// OpenLedger connects to dsn and applies pending migrations.
// postgres:// and postgresql:// URLs select Postgres, anything else is a sqlite file path.
func OpenLedger(ctx context.Context, dsn string) (*Ledger, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("ledger dsn is empty")
	}

	l := &Ledger{dialect: "sqlite", builder: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	driverName := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		l.dialect = "postgres"
		l.builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
		driverName = "postgres"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if l.dialect == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	if l.dialect == "sqlite" {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}
	l.db = db

	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// migrate leaves the database open: closing the migrator would close db too.
func (l *Ledger) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	var driver database.Driver
	switch l.dialect {
	case "postgres":
		driver, err = postgres.WithInstance(l.db, &postgres.Config{})
	default:
		driver, err = sqlite.WithInstance(l.db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, l.dialect, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// RecordRun stores one command invocation.
func (l *Ledger) RecordRun(ctx context.Context, run domain.StageRun) error {
	_, err := l.builder.Insert("stage_runs").
		Columns("id", "city", "stage", "started_at", "finished_at", "units", "failures", "error").
		Values(run.ID, run.City, run.Stage, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Units, run.Failures, run.Err).
		RunWith(l.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert stage run: %w", err)
	}
	return nil
}

// RegisterPoll opens a poll session.
func (l *Ledger) RegisterPoll(ctx context.Context, city string, state domain.PollState) error {
	_, err := l.builder.Insert("poll_sessions").
		Columns("session_id", "city", "channel_id", "message_id", "images", "sent_at", "status").
		Values(state.SessionID, city, state.ChannelID, state.PollMessageID, len(state.ImagePaths), state.SentAt.UTC(), PollOpen).
		RunWith(l.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert poll session: %w", err)
	}
	return nil
}

// SupersedePoll retires an open session so it can never be claimed.
func (l *Ledger) SupersedePoll(ctx context.Context, sessionID string, at time.Time) error {
	_, err := l.builder.Update("poll_sessions").
		Set("status", PollSuperseded).
		Set("claimed_at", at.UTC()).
		Where(sq.Eq{"session_id": sessionID, "status": PollOpen}).
		RunWith(l.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("supersede poll session: %w", err)
	}
	return nil
}

// ClaimPoll atomically moves an open session to claimed. Unknown sessions are claimable.
func (l *Ledger) ClaimPoll(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := l.builder.Update("poll_sessions").
		Set("status", PollClaimed).
		Set("claimed_at", at.UTC()).
		Where(sq.Eq{"session_id": sessionID, "status": PollOpen}).
		RunWith(l.db).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("claim poll session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim poll session: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	_, found, err := l.PollStatus(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// CompletePoll stores the decision of a claimed session.
func (l *Ledger) CompletePoll(ctx context.Context, sessionID, outcome string, approved int) error {
	_, err := l.builder.Update("poll_sessions").
		Set("status", PollCompleted).
		Set("outcome", outcome).
		Set("approved", approved).
		Where(sq.Eq{"session_id": sessionID}).
		RunWith(l.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("complete poll session: %w", err)
	}
	return nil
}

// PollStatus returns the state of a session.
func (l *Ledger) PollStatus(ctx context.Context, sessionID string) (string, bool, error) {
	var status string
	err := l.builder.Select("status").
		From("poll_sessions").
		Where(sq.Eq{"session_id": sessionID}).
		RunWith(l.db).
		QueryRowContext(ctx).
		Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query poll session: %w", err)
	}
	return status, true, nil
}

// StageSummary is the latest run of a stage.
type StageSummary struct {
	Stage      string
	FinishedAt time.Time
	Units      int
	Failures   int
	Err        string
}

// LastRuns returns the most recent run of every stage for city, ordered by stage name.
func (l *Ledger) LastRuns(ctx context.Context, city string) ([]StageSummary, error) {
	rows, err := l.builder.Select("stage", "finished_at", "units", "failures", "error").
		From("stage_runs").
		Where(sq.Eq{"city": city}).
		OrderBy("stage", "finished_at DESC").
		RunWith(l.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}

	var result []StageSummary
	seen := map[string]bool{}
	for rows.Next() {
		var s StageSummary
		if err := rows.Scan(&s.Stage, &s.FinishedAt, &s.Units, &s.Failures, &s.Err); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		if seen[s.Stage] {
			continue
		}
		seen[s.Stage] = true
		result = append(result, s)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}
	return result, nil
}
