package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
	"github.com/bryanwahyu/memtriage/internal/infra/db"
)

type FailureRepository struct {
	db *sql.DB
}

func NewFailureRepository(conn *sql.DB) *FailureRepository { return &FailureRepository{db: conn} }

func (r *FailureRepository) Save(ctx context.Context, f *domain.JobFailure) error {
	const q = `
INSERT INTO memory_analysis_failures
  (analysis_id, client_id, flow_id, stage, message, created_at)
VALUES (?,?,?,?,?,?)
`
	msg := f.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		string(f.AnalysisID), db.StringOrDash(f.ClientID), db.StringOrDash(f.FlowID),
		db.StringOrDash(string(f.Stage)), msg, created)
	if err != nil {
		return err
	}
	f.ID, _ = res.LastInsertId()
	return nil
}

func (r *FailureRepository) ListByAnalysis(ctx context.Context, id domain.AnalysisID, limit int) ([]*domain.JobFailure, error) {
	const q = `
SELECT id, analysis_id, client_id, flow_id, stage, message, created_at
FROM memory_analysis_failures
WHERE analysis_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, string(id), db.Limit(limit, defaultLimit, maxLimit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.JobFailure{}
	for rows.Next() {
		var f domain.JobFailure
		if err := rows.Scan(&f.ID, &f.AnalysisID, &f.ClientID, &f.FlowID, &f.Stage, &f.Message, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
