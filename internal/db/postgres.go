package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rowjay/s3backup/internal/target"
)

func pingPostgres(ctx context.Context, t target.Postgres) error {
	cfg, err := pgx.ParseConfig("")
	if err != nil {
		return fmt.Errorf("postgres config: %w", err)
	}
	cfg.Host = hostOrLocal(t.Host)
	cfg.Port = uint16(portOr(t.Port, 5432))
	cfg.User = t.User
	cfg.Password = t.Password
	cfg.Database = t.Database

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer conn.Close(context.Background())
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func hostOrLocal(host string) string {
	if host == "" {
		return "localhost"
	}
	return host
}

func portOr(port, def int) int {
	if port == 0 {
		return def
	}
	return port
}
