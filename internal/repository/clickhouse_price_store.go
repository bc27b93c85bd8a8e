package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	pkgch "PricePull/pkg/clickhouse"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/util"
)

const DefaultPriceTable = "pricepull.price_records"

// PriceSchema returns the DDL for table. ReplacingMergeTree keeps the row with
// the newest inserted_at per key, which gives upsert semantics after merges;
// reads use FINAL so they never see the older duplicate.
func PriceSchema(table string) []string {
	db := "pricepull"
	if i := strings.IndexByte(table, '.'); i > 0 {
		db = table[:i]
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            item_key    LowCardinality(String),
            region      LowCardinality(String),
            grade       LowCardinality(String),
            price_date  Date,
            price       Int64,
            inserted_at DateTime64(3, 'UTC')
        ) ENGINE = ReplacingMergeTree(inserted_at)
        ORDER BY (item_key, region, grade, price_date)`, table),
	}
}

// ClickHousePriceStore implements PriceStore on ClickHouse.
type ClickHousePriceStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewClickHousePriceStore(ch *pkgch.Client, table string) *ClickHousePriceStore {
	if table == "" {
		table = DefaultPriceTable
	}
	return &ClickHousePriceStore{db: ch.DB(), table: table, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *ClickHousePriceStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *ClickHousePriceStore) Upsert(ctx context.Context, recs ...models.PriceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(recs); start += chunkSize {
		end := start + chunkSize
		if end > len(recs) {
			end = len(recs)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, r := range recs[start:end] {
			if r.ItemKey == "" || r.Date.IsZero() {
				continue
			}
			inserted := r.InsertedAt
			if inserted.IsZero() {
				inserted = time.Now().UTC()
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, r.ItemKey, r.Region, r.Grade, util.DateOf(r.Date), int64(r.Price), inserted)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (item_key, region, grade, price_date, price, inserted_at) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse upsert error", applogger.String("table", s.table), applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("upsert prices: %w", err)
		}
	}
	return nil
}

func (s *ClickHousePriceStore) Get(ctx context.Context, key models.PriceKey, date time.Time) (models.PriceRecord, error) {
	const qtpl = `
        SELECT item_key, region, grade, price_date, price, inserted_at
        FROM %s FINAL
        WHERE item_key = ? AND region = ? AND grade = ? AND price_date = ?
        LIMIT 1
    `
	return s.one(ctx, fmt.Sprintf(qtpl, s.table), key.ItemKey, key.Region, key.Grade, util.DateOf(date))
}

func (s *ClickHousePriceStore) Latest(ctx context.Context, key models.PriceKey, since time.Time) (models.PriceRecord, error) {
	const qtpl = `
        SELECT item_key, region, grade, price_date, price, inserted_at
        FROM %s FINAL
        WHERE item_key = ? AND region = ? AND grade = ? AND price_date >= ?
        ORDER BY price_date DESC
        LIMIT 1
    `
	return s.one(ctx, fmt.Sprintf(qtpl, s.table), key.ItemKey, key.Region, key.Grade, util.DateOf(since))
}

func (s *ClickHousePriceStore) Range(ctx context.Context, key models.PriceKey, from, to time.Time) ([]models.PriceRecord, error) {
	start := time.Now()
	const qtpl = `
        SELECT item_key, region, grade, price_date, price, inserted_at
        FROM %s FINAL
        WHERE item_key = ? AND region = ? AND grade = ? AND price_date >= ? AND price_date <= ?
        ORDER BY price_date ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), key.ItemKey, key.Region, key.Grade, util.DateOf(from), util.DateOf(to))
	if err != nil {
		s.l.Error("clickhouse range query error", applogger.String("key", key.String()), applogger.Error(err))
		return nil, fmt.Errorf("range prices: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceRecord, 0, 64)
	for rows.Next() {
		r, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse range ok",
		applogger.String("key", key.String()),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *ClickHousePriceStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHousePriceStore) Close() error {
	return nil // Managed by pkg
}

func (s *ClickHousePriceStore) one(ctx context.Context, q string, args ...interface{}) (models.PriceRecord, error) {
	row := s.db.QueryRowContext(ctx, q, args...)
	r, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PriceRecord{}, models.ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrice(sc scanner) (models.PriceRecord, error) {
	var (
		r     models.PriceRecord
		price int64
	)
	if err := sc.Scan(&r.ItemKey, &r.Region, &r.Grade, &r.Date, &price, &r.InsertedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan price: %w", err)
	}
	r.Price = int(price)
	r.Date = util.DateOf(r.Date)
	return r, nil
}

var _ domrepo.PriceStore = (*ClickHousePriceStore)(nil)
