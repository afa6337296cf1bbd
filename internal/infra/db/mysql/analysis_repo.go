package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
	"github.com/bryanwahyu/memtriage/internal/infra/db"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

type AnalysisRepository struct {
	db       *sql.DB
	highRisk int
	now      func() time.Time
}

// NewAnalysisRepository; highRisk is the score counted as high risk in Summary.
func NewAnalysisRepository(conn *sql.DB, highRisk int) *AnalysisRepository {
	return &AnalysisRepository{db: conn, highRisk: highRisk, now: time.Now}
}

// Save appends a row; re-analyses of the same id are kept as history.
func (r *AnalysisRepository) Save(ctx context.Context, res *domain.Result) error {
	row, err := db.EncodeResult(res, r.now())
	if err != nil {
		return err
	}
	q := `INSERT INTO memory_analyses (` + db.ResultColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err = r.db.ExecContext(ctx, q, row.Args()...)
	return err
}

// Get returns the newest record for id.
func (r *AnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.Result, error) {
	q := `SELECT ` + db.ResultColumns + `
FROM memory_analyses
WHERE analysis_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`
	var row db.ResultRow
	if err := r.db.QueryRowContext(ctx, q, string(id)).Scan(row.Dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: analysis %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return row.Decode()
}

// Latest analyses across all clients
func (r *AnalysisRepository) Latest(ctx context.Context, limit int) ([]*domain.Result, error) {
	q := `SELECT ` + db.ResultColumns + `
FROM memory_analyses
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, db.Limit(limit, defaultLimit, maxLimit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Result{}
	for rows.Next() {
		var row db.ResultRow
		if err := rows.Scan(row.Dest()...); err != nil {
			return nil, err
		}
		res, err := row.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Summary counts analyses since N days
func (r *AnalysisRepository) Summary(ctx context.Context, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := r.now().UTC().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total,
       COALESCE(SUM(CASE WHEN risk_score >= ? THEN 1 ELSE 0 END),0) AS high_risk,
       COALESCE(SUM(ioc_count),0) AS iocs,
       COALESCE(ROUND(AVG(risk_score)),0) AS avg_risk
FROM memory_analyses
WHERE created_at >= ?;
`
	s := domain.Summary{SinceDays: sinceDays}
	if err := r.db.QueryRowContext(ctx, q, r.highRisk, cut).Scan(&s.Total, &s.HighRisk, &s.IOCs, &s.AvgRisk); err != nil {
		return domain.Summary{}, err
	}
	return s, nil
}
