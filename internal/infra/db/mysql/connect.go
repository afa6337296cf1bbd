package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/memtriage/internal/infra/db"
)

func Connect(ctx context.Context, dsn string, log zerolog.Logger) (*sql.DB, error) {
	return db.Connect(ctx, "mysql", dsn, log)
}
