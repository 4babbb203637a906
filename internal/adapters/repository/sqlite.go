package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/clutch/internal/domain/model"
)

const (
	driverSQLite            = "sqlite"
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// SQLiteStore is a durable Store backed by a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and verifies its schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure sqlite dir: %w", err)
		}
	}

	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (s *SQLiteStore) Create(ctx context.Context, sess model.Session) error {
	defer observe(driverSQLite, "create", time.Now())
	rec := sess.Clone()
	rec.BiomechanicalSummary, rec.BehavioralSummary, rec.Report = nil, nil, nil
	if rec.Version == 0 {
		rec.Version = 1
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO sessions (id, subject_id, status, version, created_unix, created_at, updated_at, data)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SubjectID, string(rec.Status), rec.Version,
		rec.CreatedAt.UnixNano(), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), string(data),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrExists, rec.ID)
	}
	return nil
}

// record reads the bare session record.
func (s *SQLiteStore) record(ctx context.Context, id string) (model.Session, error) {
	var (
		version int64
		data    string
	)
	err := retryOnBusy(ensureContext(ctx), func() error {
		return s.db.QueryRowContext(ctx, "SELECT version, data FROM sessions WHERE id = ?", id).Scan(&version, &data)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("read session: %w", err)
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return model.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	sess.Version = version
	return sess, nil
}

// fill attaches summaries and the report.
func (s *SQLiteStore) fill(ctx context.Context, sess *model.Session) error {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM stream_summaries WHERE session_id = ?", sess.ID)
	if err != nil {
		return fmt.Errorf("read summaries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("scan summary: %w", err)
		}
		var sum model.StreamSummary
		if err := json.Unmarshal([]byte(data), &sum); err != nil {
			return fmt.Errorf("decode summary: %w", err)
		}
		sum.Attach(sess)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate summaries: %w", err)
	}

	var report string
	err = s.db.QueryRowContext(ctx, "SELECT data FROM reports WHERE session_id = ?", sess.ID).Scan(&report)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("read report: %w", err)
	}
	var r model.FinalReport
	if err := json.Unmarshal([]byte(report), &r); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	sess.Report = &r
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Session, error) {
	defer observe(driverSQLite, "get", time.Now())
	ctx = ensureContext(ctx)
	sess, err := s.record(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if err := s.fill(ctx, &sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (s *SQLiteStore) BySubject(ctx context.Context, subjectID string, since time.Time) ([]model.Session, error) {
	defer observe(driverSQLite, "by_subject", time.Now())
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, data FROM sessions WHERE subject_id = ? AND created_unix >= ? ORDER BY created_unix, id`,
		subjectID, since.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query subject sessions: %w", err)
	}
	out := []model.Session{}
	for rows.Next() {
		var (
			version int64
			data    string
		)
		if err := rows.Scan(&version, &data); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var sess model.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode session: %w", err)
		}
		sess.Version = version
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	_ = rows.Close()

	for i := range out {
		if err := s.fill(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*model.Session) error) (model.Session, error) {
	defer observe(driverSQLite, "update", time.Now())
	ctx = ensureContext(ctx)
	for range maxUpdateAttempts {
		cur, err := s.record(ctx, id)
		if err != nil {
			return model.Session{}, err
		}
		next := cur.Clone()
		if err := fn(&next); err != nil {
			return model.Session{}, err
		}
		next.ID, next.SubjectID, next.CreatedAt = cur.ID, cur.SubjectID, cur.CreatedAt
		next.Version = cur.Version + 1
		next.UpdatedAt = time.Now().UTC()
		next.BiomechanicalSummary, next.BehavioralSummary, next.Report = nil, nil, nil

		data, err := json.Marshal(next)
		if err != nil {
			return model.Session{}, fmt.Errorf("encode session: %w", err)
		}
		res, err := s.execWithRetry(ctx,
			`UPDATE sessions SET status = ?, version = ?, updated_at = ?, data = ? WHERE id = ? AND version = ?`,
			string(next.Status), next.Version, formatTime(next.UpdatedAt), string(data), id, cur.Version,
		)
		if err != nil {
			return model.Session{}, fmt.Errorf("update session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return next, nil
		}
		if err := ctx.Err(); err != nil {
			return model.Session{}, err
		}
	}
	return model.Session{}, fmt.Errorf("%w: %s", ErrConflict, id)
}

func (s *SQLiteStore) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, id string, sum model.StreamSummary) error {
	defer observe(driverSQLite, "save_summary", time.Now())
	ctx = ensureContext(ctx)
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO stream_summaries (session_id, stream, data, created_at) VALUES (?, ?, ?, ?)`,
		id, string(sum.Kind), string(data), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrSummaryExists, id, sum.Kind)
	}
	return nil
}

func (s *SQLiteStore) AppendChunk(ctx context.Context, id string, kind model.StreamKind, index int, blob []byte) error {
	defer observe(driverSQLite, "append_chunk", time.Now())
	ctx = ensureContext(ctx)
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO frame_chunks (session_id, stream, idx, blob) VALUES (?, ?, ?, ?)`,
		id, string(kind), index, blob,
	); err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Chunks(ctx context.Context, id string, kind model.StreamKind) ([][]byte, error) {
	defer observe(driverSQLite, "chunks", time.Now())
	ctx = ensureContext(ctx)
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT blob FROM frame_chunks WHERE session_id = ? AND stream = ? ORDER BY idx`, id, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()
	out := [][]byte{}
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, blob)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) SaveReport(ctx context.Context, id string, r model.FinalReport) error {
	defer observe(driverSQLite, "save_report", time.Now())
	ctx = ensureContext(ctx)
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO reports (session_id, data, created_at) VALUES (?, ?, ?)`,
		id, string(data), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrReportExists, id)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
