package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/parentsgallery/models"
)

const DefaultOrder = "created_at DESC, id DESC"

// Store is the CRUD surface the route builder depends on. Repository
// implements it directly; services wrap it when an entity needs extra rules.
type Store[T any] interface {
	All(ctx context.Context, where map[string]any, order string) ([]T, error)
	Get(ctx context.Context, id uint) (*T, error)
	Latest(ctx context.Context) (*T, error)
	Add(ctx context.Context, item *T) (*T, error)
	Edit(ctx context.Context, id uint, changes map[string]any) (*T, error)
	DeleteByID(ctx context.Context, id uint) (bool, error)
}

// Repository is typed CRUD over the table of T. Absent rows are reported as a
// nil result, never as an error.
type Repository[T any, PT interface {
	*T
	models.Record
}] struct {
	DB  *gorm.DB
	Now func() time.Time
}

func New[T any, PT interface {
	*T
	models.Record
}](db *gorm.DB) *Repository[T, PT] {
	return &Repository[T, PT]{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository[T, PT]) db(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx)
}

// All returns every row matching the equality filter, newest first unless an
// order clause is given.
func (r *Repository[T, PT]) All(ctx context.Context, where map[string]any, order string) ([]T, error) {
	if order == "" {
		order = DefaultOrder
	}
	q := r.db(ctx).Order(order)
	if len(where) > 0 {
		q = q.Where(where)
	}

	items := []T{}
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", tableName[T, PT](), err)
	}
	return items, nil
}

func (r *Repository[T, PT]) Get(ctx context.Context, id uint) (*T, error) {
	var item T
	err := r.db(ctx).First(&item, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s %d: %w", tableName[T, PT](), id, err)
	}
	return &item, nil
}

// First returns the first row matching the equality filter, or nil.
func (r *Repository[T, PT]) First(ctx context.Context, where map[string]any) (*T, error) {
	var item T
	err := r.db(ctx).Where(where).Order("id ASC").Limit(1).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find %s: %w", tableName[T, PT](), err)
	}
	return &item, nil
}

func (r *Repository[T, PT]) Latest(ctx context.Context) (*T, error) {
	var item T
	err := r.db(ctx).Order(DefaultOrder).Limit(1).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest %s: %w", tableName[T, PT](), err)
	}
	return &item, nil
}

// Add stamps createdAt and updatedAt with the same instant and inserts the row.
func (r *Repository[T, PT]) Add(ctx context.Context, item *T) (*T, error) {
	now := r.Now()
	base := PT(item).RecordBase()
	base.ID = 0
	base.CreatedAt = now
	base.UpdatedAt = now

	if err := r.db(ctx).Omit(clause.Associations).Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", tableName[T, PT](), err)
	}
	return item, nil
}

// AddIfEmpty inserts item only when the table has no rows. It is meant for
// first-boot seeding from a single process.
func (r *Repository[T, PT]) AddIfEmpty(ctx context.Context, item *T) (*T, bool, error) {
	count, err := r.Count(ctx)
	if err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, nil
	}
	saved, err := r.Add(ctx, item)
	if err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

// Edit applies the column changes and moves updatedAt strictly forward.
// Returns nil when id does not exist.
func (r *Repository[T, PT]) Edit(ctx context.Context, id uint, changes map[string]any) (*T, error) {
	existing, err := r.Get(ctx, id)
	if err != nil || existing == nil {
		return nil, err
	}

	now := r.Now()
	if prev := PT(existing).RecordBase().UpdatedAt; !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}

	updates := make(map[string]any, len(changes)+1)
	for k, v := range changes {
		updates[k] = v
	}
	delete(updates, "id")
	delete(updates, "created_at")
	updates["updated_at"] = now

	if err := r.db(ctx).Model(new(T)).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update %s %d: %w", tableName[T, PT](), id, err)
	}
	return r.Get(ctx, id)
}

// DeleteByID reports whether a row was actually removed.
func (r *Repository[T, PT]) DeleteByID(ctx context.Context, id uint) (bool, error) {
	res := r.db(ctx).Delete(new(T), id)
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete %s %d: %w", tableName[T, PT](), id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository[T, PT]) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db(ctx).Model(new(T)).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", tableName[T, PT](), err)
	}
	return count, nil
}

func tableName[T any, PT interface {
	*T
	models.Record
}]() string {
	return PT(new(T)).TableName()
}
