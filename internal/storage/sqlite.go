package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sjawhar/codereflex/internal/interview"
	"github.com/sjawhar/codereflex/internal/submission"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "codereflex.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS interviews (
			id TEXT PRIMARY KEY,
			job_role TEXT NOT NULL,
			company_name TEXT NOT NULL,
			interview_type TEXT NOT NULL,
			difficulty_level TEXT NOT NULL,
			duration INTEGER NOT NULL,
			interviewer_personality TEXT NOT NULL,
			custom_focus_areas TEXT NOT NULL DEFAULT '',
			job_description TEXT NOT NULL DEFAULT '',
			resume_text TEXT NOT NULL DEFAULT '',
			enable_webcam INTEGER NOT NULL DEFAULT 0,
			voice TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			started_at TEXT,
			ended_at TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			transcript TEXT,
			code_snippet TEXT,
			emotion_summary TEXT,
			ai_feedback TEXT
		);
	`); err != nil {
		return fmt.Errorf("create interviews table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_interviews_created_at ON interviews(created_at)"); err != nil {
		return fmt.Errorf("create interviews index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateInterview(ctx context.Context, p interview.Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("interview id is required")
	}
	r := rowFromProfile(p)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interviews(id, job_role, company_name, interview_type, difficulty_level, duration,
			interviewer_personality, custom_focus_areas, job_description, resume_text, enable_webcam, voice,
			created_at, status)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobRole, r.CompanyName, r.InterviewType, r.DifficultyLevel, r.Duration,
		r.InterviewerPersonality, r.CustomFocusAreas, r.JobDescription, r.ResumeText, r.EnableWebcam, r.Voice,
		r.CreatedAt.Format(time.RFC3339Nano), r.Status,
	)
	if err != nil {
		return fmt.Errorf("create interview %s: %w", p.ID, err)
	}
	return nil
}

const selectInterview = `SELECT id, job_role, company_name, interview_type, difficulty_level, duration,
	interviewer_personality, custom_focus_areas, job_description, resume_text, enable_webcam, voice,
	created_at, started_at, ended_at, status, transcript, code_snippet, emotion_summary, ai_feedback
	FROM interviews`

func (s *SQLiteStore) GetInterview(ctx context.Context, id string) (Interview, error) {
	row := s.db.QueryRowContext(ctx, selectInterview+` WHERE id = ?`, id)
	iv, err := scanInterview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interview{}, fmt.Errorf("get interview %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Interview{}, fmt.Errorf("get interview %s: %w", id, err)
	}
	return iv, nil
}

func (s *SQLiteStore) ListInterviews(ctx context.Context) ([]Interview, error) {
	rows, err := s.db.QueryContext(ctx, selectInterview+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query interviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	interviews := make([]Interview, 0, 16)
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		interviews = append(interviews, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interview rows: %w", err)
	}
	return interviews, nil
}

func (s *SQLiteStore) MarkStarted(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interviews SET started_at = ?, status = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), StatusActive, id,
	)
	if err != nil {
		return fmt.Errorf("mark interview %s started: %w", id, err)
	}
	return expectRow(res, id)
}

func (s *SQLiteStore) SaveResult(ctx context.Context, result submission.Result) error {
	u, err := newResultUpdate(result)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE interviews SET transcript = ?, code_snippet = ?, emotion_summary = ?, ai_feedback = ?,
			ended_at = ?, status = ? WHERE id = ?`,
		string(u.Transcript), string(u.CodeSnippet), string(u.EmotionSummary), string(u.AIFeedback),
		u.EndedAt.Format(time.RFC3339Nano), u.Status, result.InterviewID,
	)
	if err != nil {
		return fmt.Errorf("save result for interview %s: %w", result.InterviewID, err)
	}
	return expectRow(res, result.InterviewID)
}

func expectRow(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("interview %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInterview(sc scanner) (Interview, error) {
	var r interviewRow
	var createdAt string
	var startedAt, endedAt sql.NullString
	var transcript, code, emotions, feedback sql.NullString

	if err := sc.Scan(
		&r.ID, &r.JobRole, &r.CompanyName, &r.InterviewType, &r.DifficultyLevel, &r.Duration,
		&r.InterviewerPersonality, &r.CustomFocusAreas, &r.JobDescription, &r.ResumeText, &r.EnableWebcam, &r.Voice,
		&createdAt, &startedAt, &endedAt, &r.Status, &transcript, &code, &emotions, &feedback,
	); err != nil {
		return Interview{}, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Interview{}, fmt.Errorf("parse created_at: %w", err)
	}
	r.CreatedAt = parsed

	if r.StartedAt, err = parseNullTime(startedAt); err != nil {
		return Interview{}, fmt.Errorf("parse started_at: %w", err)
	}
	if r.EndedAt, err = parseNullTime(endedAt); err != nil {
		return Interview{}, fmt.Errorf("parse ended_at: %w", err)
	}

	r.Transcript = rawOrNil(transcript)
	r.CodeSnippet = rawOrNil(code)
	r.EmotionSummary = rawOrNil(emotions)
	r.AIFeedback = rawOrNil(feedback)

	return r.toInterview()
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func rawOrNil(v sql.NullString) []byte {
	if !v.Valid {
		return nil
	}
	return []byte(v.String)
}
