package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormClient implements Client on top of a GORM connection (postgres in
// production, sqlite in development and tests).
type GormClient struct {
	db *gorm.DB
}

func NewGormClient(db *gorm.DB) *GormClient { return &GormClient{db: db} }

func applyFilters(tx *gorm.DB, filters []Filter) *gorm.DB {
	for _, f := range filters {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: f.Column}, Value: f.Value})
	}
	return tx
}

func (c *GormClient) Select(ctx context.Context, q Query, dest any) error {
	tx := c.db.WithContext(ctx).Table(q.Table)
	if len(q.Columns) > 0 {
		tx = tx.Select(q.Columns)
	}
	tx = applyFilters(tx, q.Filters)
	if q.Order != nil {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.Order.Column}, Desc: q.Order.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if err := tx.Find(dest).Error; err != nil {
		return fmt.Errorf("select %s: %w", q.Table, err)
	}
	return nil
}

func (c *GormClient) Insert(ctx context.Context, table string, row any) error {
	db := c.db.WithContext(ctx)
	if err := db.Table(table).Create(row).Error; err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	// row carries its primary key now, so Take reads back exactly this row
	if err := db.Table(table).Take(row).Error; err != nil {
		return fmt.Errorf("insert %s: read back: %w", table, err)
	}
	return nil
}

func (c *GormClient) Update(ctx context.Context, table string, patch map[string]any, dest any, filters ...Filter) error {
	if len(patch) == 0 {
		return ErrEmptyPatch
	}
	cols := make([]string, 0, len(patch))
	for k := range patch {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyFilters(tx.Table(table), filters).Take(dest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		// json tags mirror column names, so the patch can be merged onto the
		// loaded row and written back through the model's serializers
		raw, err := json.Marshal(patch)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("apply patch: %w", err)
		}
		if err := tx.Table(table).Model(dest).Select(cols).Updates(dest).Error; err != nil {
			return err
		}
		return tx.Table(table).Take(dest).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func (c *GormClient) Delete(ctx context.Context, table string, model any, filters ...Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("delete %s: %w", table, gorm.ErrMissingWhereClause)
	}
	res := applyFilters(c.db.WithContext(ctx).Table(table), filters).Delete(model)
	if res.Error != nil {
		return fmt.Errorf("delete %s: %w", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
