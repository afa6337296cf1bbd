package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"
)

const (
	pingTimeout     = 5 * time.Second
	initialInterval = 500 * time.Millisecond
	maxInterval     = 10 * time.Second
	maxElapsed      = 2 * time.Minute
)

// Connect opens a pool for driverName and pings it, retrying with exponential
// backoff until the database answers or maxElapsed passes.
func Connect(ctx context.Context, driverName, dsn string, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = maxElapsed

	err = backoff.RetryNotify(func() error {
		// test ping
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return db.PingContext(pctx)
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("driver", driverName).Dur("retry_in", wait).Msg("database not reachable, retrying")
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("driver", driverName).Msg("database connected")
	return db, nil
}
