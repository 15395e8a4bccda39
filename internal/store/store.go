package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/assessor/internal/model"

	_ "modernc.org/sqlite"
)

// Store archives generated and modified assessments in SQLite.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		source_id TEXT NOT NULL DEFAULT '',
		params TEXT,
		modifications TEXT,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveAssessment stores an archived assessment.
func (s *Store) SaveAssessment(rec model.AssessmentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("assessment record has no id")
	}
	body, err := json.Marshal(rec.Body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	var params, mods sql.NullString
	if rec.Params != nil {
		if params, err = jsonString(rec.Params); err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
	}
	if rec.Modifications != nil {
		if mods, err = jsonString(rec.Modifications); err != nil {
			return fmt.Errorf("marshal modifications: %w", err)
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.Exec(
		`INSERT INTO assessments (id, connection_id, kind, source_id, params, modifications, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ConnectionID, rec.Kind, rec.SourceID, params, mods, string(body), rec.CreatedAt,
	)
	return err
}

// GetAssessment returns the record with the given id, or nil if not found.
func (s *Store) GetAssessment(id string) (*model.AssessmentRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, connection_id, kind, source_id, params, modifications, body, created_at
		 FROM assessments WHERE id = ?`, id,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAssessments returns archived assessments, newest first.
// An empty kind means all kinds.
func (s *Store) ListAssessments(kind model.AssessmentKind) ([]model.AssessmentRecord, error) {
	query := `SELECT id, connection_id, kind, source_id, params, modifications, body, created_at FROM assessments`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.AssessmentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AssessmentCount returns the number of archived assessments.
func (s *Store) AssessmentCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM assessments`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.AssessmentRecord, error) {
	var (
		rec          model.AssessmentRecord
		params, mods sql.NullString
		body         string
	)
	if err := sc.Scan(&rec.ID, &rec.ConnectionID, &rec.Kind, &rec.SourceID, &params, &mods, &body, &rec.CreatedAt); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(body), &rec.Body); err != nil {
		return rec, fmt.Errorf("decode body of %s: %w", rec.ID, err)
	}
	if params.Valid {
		var p model.AssessmentParams
		if err := json.Unmarshal([]byte(params.String), &p); err != nil {
			return rec, fmt.Errorf("decode params of %s: %w", rec.ID, err)
		}
		rec.Params = &p
	}
	if mods.Valid {
		if err := json.Unmarshal([]byte(mods.String), &rec.Modifications); err != nil {
			return rec, fmt.Errorf("decode modifications of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func jsonString(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
