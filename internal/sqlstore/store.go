// Package sqlstore keeps the ledger in a MySQL table.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

const createTable = "CREATE TABLE IF NOT EXISTS %s (" +
	"id BIGINT AUTO_INCREMENT PRIMARY KEY, " +
	"date_sent VARCHAR(32) NOT NULL, " +
	"sender_name VARCHAR(255) NOT NULL, " +
	"receiver_name VARCHAR(255) NOT NULL, " +
	"account_number VARCHAR(64) NOT NULL, " +
	"amount DECIMAL(14,2) NOT NULL, " +
	"`timestamp` VARCHAR(19) NOT NULL)"

// Store implements the ledger store on MySQL.
type Store struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// New connects using a go-sql-driver DSN and creates the table if needed.
func New(ctx context.Context, dsn, table string, now func() time.Time) (*Store, error) {
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	cfg.ParseTime = false

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(createTable, table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table %s: %w", table, err)
	}
	slog.Info("Connected to MySQL ledger", "address", cfg.Addr, "database", cfg.DBName, "table", table)

	if now == nil {
		now = time.Now
	}
	return &Store{db: db, table: table, now: now}, nil
}

// Append inserts rec as a new row.
func (s *Store) Append(ctx context.Context, rec ledger.Record) error {
	query := fmt.Sprintf("INSERT INTO %s (date_sent, sender_name, receiver_name, account_number, amount, `timestamp`) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, query,
		rec.DateSent,
		rec.SenderName,
		rec.ReceiverName,
		rec.AccountNumber,
		rec.AmountText(),
		s.now().Format(ledger.TimestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting row: %w", err)
	}
	return nil
}

// Search runs q as a parameterised SELECT in insertion order.
func (s *Store) Search(ctx context.Context, q ledger.Query) ([]ledger.SearchResult, error) {
	query, args, err := searchQuery(s.table, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching rows: %w", err)
	}
	defer rows.Close()

	results := make([]ledger.SearchResult, 0)
	for rows.Next() {
		var r ledger.SearchResult
		if err := rows.Scan(&r.DateSent, &r.SenderName, &r.ReceiverName, &r.AccountNumber, &r.Amount, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return results, nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// sqlColumns maps ledger columns to quoted SQL identifiers. Column names in
// queries only ever come from this map.
var sqlColumns = map[string]string{
	ledger.ColumnDateSent:      "date_sent",
	ledger.ColumnSenderName:    "sender_name",
	ledger.ColumnReceiverName:  "receiver_name",
	ledger.ColumnAccountNumber: "account_number",
	ledger.ColumnAmount:        "amount",
	ledger.ColumnTimestamp:     "`timestamp`",
}

func searchQuery(table string, q ledger.Query) (string, []any, error) {
	col, ok := sqlColumns[q.ColumnToSearch]
	if !ok {
		return "", nil, fmt.Errorf("unknown column %q", q.ColumnToSearch)
	}

	selectList := "SELECT date_sent, sender_name, receiver_name, account_number, CAST(amount AS CHAR), `timestamp` FROM " + table

	if amount, ok := q.AmountValue(); ok {
		return selectList + " WHERE amount = ? ORDER BY id", []any{amount.String()}, nil
	}
	where := fmt.Sprintf(" WHERE LOWER(CAST(%s AS CHAR)) LIKE ? ESCAPE '\\\\' ORDER BY id", col)
	return selectList + where, []any{"%" + escapeLike(strings.ToLower(strings.TrimSpace(q.SearchValue))) + "%"}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func validIdentifier(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
