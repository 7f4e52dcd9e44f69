// Package store persists finished intelligence reports in SQLite and,
// when an embedder is available, indexes them for semantic recall
// through the sqlite-vec extension.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"titan/internal/config"
	"titan/internal/research"
	"titan/internal/synthesis"
)

func init() {
	// Register sqlite-vec as an auto-loadable extension so every
	// connection the mattn/go-sqlite3 driver opens can use vec0 tables.
	sqlite_vec.Auto()
}

// Embedder produces the vector used to index a report for recall.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is a SQLite-backed report sink. It implements research.Sink.
type Store struct {
	db       *sql.DB
	embedder Embedder
	dims     int
	log      *zap.Logger

	mu     sync.Mutex
	closed bool
}

// SimilarReport is one recall result with its vector distance.
type SimilarReport struct {
	ID        string                     `json:"id"`
	Query     string                     `json:"query"`
	Mode      string                     `json:"mode"`
	Map       *synthesis.IntelligenceMap `json:"intelligence_map"`
	CreatedAt time.Time                  `json:"created_at"`
	Distance  float64                    `json:"distance"`
}

// Open creates or opens the report database at cfg.Path and ensures the
// schema exists. embedder may be nil; reports are then stored without a
// vector index and Similar is unavailable.
func Open(cfg config.StoreConfig, embedder Embedder, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dims := cfg.EmbedDims
	if dims <= 0 {
		dims = 768
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Path, err)
	}

	s := &Store{db: db, embedder: embedder, dims: dims, log: log}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		mode TEXT NOT NULL,
		intelligence_map TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
		)`,

		// Vector virtual table (REQUIRED for sqlite-vec).
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_reports USING vec0(
		embedding float[%d],
		report_id TEXT
		)`, s.dims),

		`CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("store: initialize schema: %w", err)
		}
	}
	return nil
}

// Store saves one finished report. The intelligence map is stored as
// JSON; a vector over the query and summary is indexed when an embedder
// is configured. An embedding failure downgrades to a plain insert.
func (s *Store) Store(ctx context.Context, report *research.Report) error {
	// The mutex guards only the closed flag; holding it across the
	// transaction would serialize every write behind the embedding call.
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("store: closed")
	}

	mapJSON, err := json.Marshal(report.Map)
	if err != nil {
		return fmt.Errorf("store: marshal intelligence map: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.log.Warn("report transaction rollback failed", zap.Error(err))
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (id, query, mode, intelligence_map, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		report.ID, report.Query, string(report.Mode), string(mapJSON), report.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert report: %w", err)
	}

	if blob := s.embedReport(ctx, report); blob != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO vec_reports (embedding, report_id) VALUES (?, ?)`,
			blob, report.ID)
		if err != nil {
			return fmt.Errorf("store: index report vector: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit report: %w", err)
	}

	s.log.Debug("report persisted",
		zap.String("report_id", report.ID),
		zap.String("mode", string(report.Mode)))
	return nil
}

// embedReport returns the serialized embedding for a report, or nil when
// no vector can be produced. Embedding problems never block persistence.
func (s *Store) embedReport(ctx context.Context, report *research.Report) []byte {
	if s.embedder == nil {
		return nil
	}

	text := report.Query
	if report.Map != nil && report.Map.Summary != "" {
		text += "\n" + report.Map.Summary
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.log.Warn("report embedding failed, storing without vector index",
			zap.String("report_id", report.ID),
			zap.Error(err))
		return nil
	}
	if len(vec) != s.dims {
		s.log.Warn("embedding dimension mismatch, storing without vector index",
			zap.Int("got", len(vec)),
			zap.Int("want", s.dims))
		return nil
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		s.log.Warn("embedding serialization failed", zap.Error(err))
		return nil
	}
	return blob
}

// Similar returns the stored reports closest to the query, nearest
// first. It requires an embedder.
func (s *Store) Similar(ctx context.Context, query string, limit int) ([]SimilarReport, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("store: semantic recall requires an embedder")
	}
	if limit <= 0 {
		limit = 5
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: embed recall query: %w", err)
	}
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("store: serialize recall query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.query, r.mode, r.intelligence_map, r.created_at, v.distance
		FROM vec_reports v
		JOIN reports r ON r.id = v.report_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		blob, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recall query: %w", err)
	}
	defer rows.Close()

	return scanSimilar(rows)
}

// Recent returns the newest stored reports. It works without an
// embedder and reports a zero distance.
func (s *Store) Recent(ctx context.Context, limit int) ([]SimilarReport, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, mode, intelligence_map, created_at, 0
		FROM reports
		ORDER BY created_at DESC
		LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent query: %w", err)
	}
	defer rows.Close()

	return scanSimilar(rows)
}

func scanSimilar(rows *sql.Rows) ([]SimilarReport, error) {
	var out []SimilarReport
	for rows.Next() {
		var (
			rep     SimilarReport
			mapJSON string
		)
		if err := rows.Scan(&rep.ID, &rep.Query, &rep.Mode, &mapJSON, &rep.CreatedAt, &rep.Distance); err != nil {
			return nil, fmt.Errorf("store: scan report row: %w", err)
		}
		var m synthesis.IntelligenceMap
		if err := json.Unmarshal([]byte(mapJSON), &m); err != nil {
			return nil, fmt.Errorf("store: decode intelligence map: %w", err)
		}
		rep.Map = &m
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate report rows: %w", err)
	}
	return out, nil
}

// Close releases the database handle. Further calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
