package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/memtriage/internal/infra/db"
)

func Connect(ctx context.Context, dsn string, log zerolog.Logger) (*sql.DB, error) {
	return db.Connect(ctx, "postgres", dsn, log)
}
