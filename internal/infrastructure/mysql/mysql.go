package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
	id          VARCHAR(64) PRIMARY KEY,
	name        VARCHAR(255) NOT NULL,
	description TEXT NOT NULL,
	unit_price  DECIMAL(19, 4) NOT NULL,
	stock       BIGINT NOT NULL,
	version     BIGINT NOT NULL DEFAULT 0,
	created_at  DATETIME(6) NOT NULL,
	updated_at  DATETIME(6) NOT NULL,
	CONSTRAINT products_stock_non_negative CHECK (stock >= 0),
	CONSTRAINT products_price_non_negative CHECK (unit_price >= 0)
)`,
	`CREATE TABLE IF NOT EXISTS payment_attempts (
	id                 VARCHAR(64) PRIMARY KEY,
	order_id           VARCHAR(64) NOT NULL,
	product_id         VARCHAR(64) NOT NULL,
	amount             DECIMAL(19, 4) NOT NULL,
	bank_response_code VARCHAR(64) NULL,
	outcome            VARCHAR(32) NOT NULL,
	reason             TEXT NOT NULL,
	created_at         DATETIME(6) NOT NULL,
	INDEX payment_attempts_order_id_idx (order_id, created_at)
)`,
	`CREATE TABLE IF NOT EXISTS payment_discrepancies (
	id                 VARCHAR(64) PRIMARY KEY,
	order_id           VARCHAR(64) NOT NULL,
	product_id         VARCHAR(64) NOT NULL,
	amount             DECIMAL(19, 4) NOT NULL,
	bank_response_code VARCHAR(64) NULL,
	late_outcome       VARCHAR(32) NOT NULL,
	recorded_outcome   VARCHAR(32) NOT NULL,
	detected_at        DATETIME(6) NOT NULL
)`,
}

// Open connects with the mysql driver. parseTime is forced on so DATETIME scans into time.Time.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var myErr *gomysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
