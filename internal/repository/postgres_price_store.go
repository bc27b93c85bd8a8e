package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	pkgpg "PricePull/pkg/postgres"
	"PricePull/pkg/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// priceRow is the Postgres layout of a PriceRecord.
type priceRow struct {
	ItemKey    string    `gorm:"column:item_key;primaryKey;size:64"`
	Region     string    `gorm:"column:region;primaryKey;size:32"`
	Grade      string    `gorm:"column:grade;primaryKey;size:4"`
	PriceDate  time.Time `gorm:"column:price_date;primaryKey;type:date"`
	Price      int       `gorm:"column:price;not null"`
	InsertedAt time.Time `gorm:"column:inserted_at;not null"`
}

func (priceRow) TableName() string { return "price_records" }

func toRow(r models.PriceRecord) priceRow {
	inserted := r.InsertedAt
	if inserted.IsZero() {
		inserted = time.Now().UTC()
	}
	return priceRow{
		ItemKey:    r.ItemKey,
		Region:     r.Region,
		Grade:      r.Grade,
		PriceDate:  util.DateOf(r.Date),
		Price:      r.Price,
		InsertedAt: inserted,
	}
}

func (p priceRow) record() models.PriceRecord {
	return models.PriceRecord{
		ItemKey:    p.ItemKey,
		Region:     p.Region,
		Grade:      p.Grade,
		Date:       util.DateOf(p.PriceDate),
		Price:      p.Price,
		InsertedAt: p.InsertedAt,
	}
}

// PostgresPriceStore implements PriceStore with gorm on Postgres.
type PostgresPriceStore struct {
	db *gorm.DB
}

func NewPostgresPriceStore(pg *pkgpg.Client) *PostgresPriceStore {
	return &PostgresPriceStore{db: pg.DB()}
}

// Migrate creates or updates the price table.
func (s *PostgresPriceStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&priceRow{}); err != nil {
		return fmt.Errorf("migrate price_records: %w", err)
	}
	return nil
}

func (s *PostgresPriceStore) Upsert(ctx context.Context, recs ...models.PriceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]priceRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, toRow(r))
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "item_key"},
			{Name: "region"},
			{Name: "grade"},
			{Name: "price_date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"price", "inserted_at"}),
	}).CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("upsert prices: %w", err)
	}
	return nil
}

func (s *PostgresPriceStore) Get(ctx context.Context, key models.PriceKey, date time.Time) (models.PriceRecord, error) {
	var row priceRow
	err := s.keyed(ctx, key).Where("price_date = ?", util.DateOf(date)).First(&row).Error
	return found(row, err)
}

func (s *PostgresPriceStore) Latest(ctx context.Context, key models.PriceKey, since time.Time) (models.PriceRecord, error) {
	var row priceRow
	err := s.keyed(ctx, key).
		Where("price_date >= ?", util.DateOf(since)).
		Order("price_date DESC").
		First(&row).Error
	return found(row, err)
}

func (s *PostgresPriceStore) Range(ctx context.Context, key models.PriceKey, from, to time.Time) ([]models.PriceRecord, error) {
	var rows []priceRow
	err := s.keyed(ctx, key).
		Where("price_date BETWEEN ? AND ?", util.DateOf(from), util.DateOf(to)).
		Order("price_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("range prices: %w", err)
	}
	out := make([]models.PriceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (s *PostgresPriceStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresPriceStore) Close() error {
	return nil // Managed by pkg
}

func (s *PostgresPriceStore) keyed(ctx context.Context, key models.PriceKey) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&priceRow{}).
		Where("item_key = ? AND region = ? AND grade = ?", key.ItemKey, key.Region, key.Grade)
}

func found(row priceRow, err error) (models.PriceRecord, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PriceRecord{}, models.ErrNotFound
	}
	if err != nil {
		return models.PriceRecord{}, fmt.Errorf("get price: %w", err)
	}
	return row.record(), nil
}

var _ domrepo.PriceStore = (*PostgresPriceStore)(nil)
