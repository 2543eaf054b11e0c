package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/rowjay/s3backup/internal/target"
)

func pingMySQL(ctx context.Context, t target.MySQL) error {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(hostOrLocal(t.Host), strconv.Itoa(portOr(t.Port, 3306)))
	cfg.User = t.User
	cfg.Passwd = t.Password
	cfg.DBName = t.Database

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return fmt.Errorf("mysql config: %w", err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("mysql ping: %w", err)
	}
	return nil
}
