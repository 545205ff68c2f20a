package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the service needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Service struct {
	db DB
}

func NewService(db DB) *Service {
	return &Service{db: db}
}

// Entry describes one processed upload. Transcript text is deliberately not
// part of it.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	RequestID   string    `json:"request_id,omitempty"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	Outcome     string    `json:"outcome"`
	Stage       string    `json:"stage,omitempty"`
	Transcoder  string    `json:"transcoder,omitempty"`
	Recognizer  string    `json:"recognizer,omitempty"`
	Language    string    `json:"language"`
	TextLength  int       `json:"text_length"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Service) Log(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO transcription_audit (id, request_id, filename, size_bytes, outcome, stage, transcoder, recognizer, language, text_length, elapsed_ms, error_detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.RequestID, e.Filename, e.SizeBytes, e.Outcome, e.Stage, e.Transcoder, e.Recognizer,
		e.Language, e.TextLength, e.ElapsedMs, e.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

type Query struct {
	Outcome string
	Limit   int
	Offset  int
}

func (s *Service) List(ctx context.Context, q Query) ([]Entry, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}

	sql := `SELECT id, request_id, filename, size_bytes, outcome, stage, transcoder, recognizer, language, text_length, elapsed_ms, error_detail, created_at
			FROM transcription_audit`
	var args []any
	argIdx := 1

	if q.Outcome != "" {
		sql += fmt.Sprintf(" WHERE outcome = $%d", argIdx)
		args = append(args, q.Outcome)
		argIdx++
	}

	sql += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Filename, &e.SizeBytes, &e.Outcome, &e.Stage, &e.Transcoder,
			&e.Recognizer, &e.Language, &e.TextLength, &e.ElapsedMs, &e.ErrorDetail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
