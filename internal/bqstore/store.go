// Package bqstore keeps the ledger in a BigQuery table. Appends use the
// streaming inserter; searches run parameterised queries.
package bqstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

// Config names the table the ledger lives in.
type Config struct {
	ProjectID string
	Dataset   string
	Table     string
	// Now stamps appended rows. Defaults to time.Now.
	Now func() time.Time
}

// ledgerRow is the stored shape of a record. Seq orders rows by insertion.
type ledgerRow struct {
	DateSent      string   `bigquery:"date_sent"`
	SenderName    string   `bigquery:"sender_name"`
	ReceiverName  string   `bigquery:"receiver_name"`
	AccountNumber string   `bigquery:"account_number"`
	Amount        *big.Rat `bigquery:"amount"`
	Timestamp     string   `bigquery:"timestamp"`
	Seq           int64    `bigquery:"seq"`
}

// resultRow is what a search query selects.
type resultRow struct {
	DateSent      string `bigquery:"date_sent"`
	SenderName    string `bigquery:"sender_name"`
	ReceiverName  string `bigquery:"receiver_name"`
	AccountNumber string `bigquery:"account_number"`
	Amount        string `bigquery:"amount"`
	Timestamp     string `bigquery:"timestamp"`
}

// Store implements the ledger store on BigQuery.
type Store struct {
	client *bigquery.Client
	table  *bigquery.Table
	ref    string
	now    func() time.Time
}

// New creates a client and the table if it does not exist yet.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	if cfg.ProjectID == "" || cfg.Dataset == "" || cfg.Table == "" {
		return nil, fmt.Errorf("project, dataset and table are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	s := &Store{
		client: client,
		table:  client.Dataset(cfg.Dataset).Table(cfg.Table),
		ref:    tableRef(cfg.ProjectID, cfg.Dataset, cfg.Table),
		now:    cfg.Now,
	}
	if err := s.ensureTable(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureTable(ctx context.Context) error {
	_, err := s.table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("reading table metadata: %w", err)
	}

	schema, err := bigquery.InferSchema(ledgerRow{})
	if err != nil {
		return fmt.Errorf("inferring schema: %w", err)
	}
	if err := s.table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return fmt.Errorf("creating table %s: %w", s.ref, err)
	}
	slog.Info("Created BigQuery ledger table", "table", s.ref)
	return nil
}

// Append streams rec into the table.
func (s *Store) Append(ctx context.Context, rec ledger.Record) error {
	row := newRow(rec, s.now())
	if err := s.table.Inserter().Put(ctx, row); err != nil {
		return fmt.Errorf("inserting row: %w", err)
	}
	return nil
}

// Search runs q and returns the rows in insertion order.
func (s *Store) Search(ctx context.Context, q ledger.Query) ([]ledger.SearchResult, error) {
	sql, params, err := searchSQL(s.ref, q)
	if err != nil {
		return nil, err
	}

	query := s.client.Query(sql)
	query.Parameters = params

	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("running search query: %w", err)
	}

	results := make([]ledger.SearchResult, 0)
	for {
		var row resultRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading search results: %w", err)
		}
		results = append(results, row.result())
	}
	return results, nil
}

// Close closes the bigquery client
func (s *Store) Close() error {
	return s.client.Close()
}

func tableRef(project, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, table)
}

func newRow(rec ledger.Record, now time.Time) *ledgerRow {
	return &ledgerRow{
		DateSent:      rec.DateSent,
		SenderName:    rec.SenderName,
		ReceiverName:  rec.ReceiverName,
		AccountNumber: rec.AccountNumber,
		Amount:        rec.Amount.Rat(),
		Timestamp:     now.Format(ledger.TimestampLayout),
		Seq:           now.UnixNano(),
	}
}

func (r resultRow) result() ledger.SearchResult {
	amount := r.Amount
	if d, err := decimal.NewFromString(r.Amount); err == nil {
		amount = d.StringFixed(2)
	}
	return ledger.SearchResult{
		DateSent:      r.DateSent,
		SenderName:    r.SenderName,
		ReceiverName:  r.ReceiverName,
		AccountNumber: r.AccountNumber,
		Amount:        amount,
		Timestamp:     r.Timestamp,
	}
}

// bqColumns whitelists the identifiers a query may reference.
var bqColumns = map[string]string{
	ledger.ColumnDateSent:      "date_sent",
	ledger.ColumnSenderName:    "sender_name",
	ledger.ColumnReceiverName:  "receiver_name",
	ledger.ColumnAccountNumber: "account_number",
	ledger.ColumnAmount:        "amount",
	ledger.ColumnTimestamp:     "`timestamp`",
}

func searchSQL(ref string, q ledger.Query) (string, []bigquery.QueryParameter, error) {
	col, ok := bqColumns[q.ColumnToSearch]
	if !ok {
		return "", nil, fmt.Errorf("unknown column %q", q.ColumnToSearch)
	}

	sql := "SELECT date_sent, sender_name, receiver_name, account_number, " +
		"CAST(amount AS STRING) AS amount, `timestamp` FROM " + ref

	if amount, ok := q.AmountValue(); ok {
		sql += " WHERE amount = @amount ORDER BY seq"
		return sql, []bigquery.QueryParameter{{Name: "amount", Value: amount.Rat()}}, nil
	}

	sql += fmt.Sprintf(" WHERE STRPOS(LOWER(CAST(%s AS STRING)), LOWER(@value)) > 0 ORDER BY seq", col)
	return sql, []bigquery.QueryParameter{{Name: "value", Value: strings.TrimSpace(q.SearchValue)}}, nil
}
