package swirl

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// prepareStatements prepares every named query in preparedStatements
// on conn. It is installed as pgxpool.Config.AfterConnect so each
// pooled connection only ever plans these queries once.
func prepareStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range preparedStatements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return err
		}
	}
	return nil
}

// newConnectionPool builds a pgxpool.Pool for databaseURL sized to
// maxConns, with every storage.go query pre-planned on each
// connection via AfterConnect.
func newConnectionPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = maxConns
	cfg.AfterConnect = prepareStatements

	return pgxpool.NewWithConfig(ctx, cfg)
}
