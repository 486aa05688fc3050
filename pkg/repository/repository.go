package repository

import (
	"context"
	"errors"

	"turnover-rewards/pkg/db/option"

	"gorm.io/gorm"
)

// Repository is the generic persistence surface shared by every service.
// WithTrx returns a copy bound to the given transaction handle so multi-step
// writes stay on one connection.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]T, error)
	FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error)
	Count(ctx context.Context, filter *T, opts ...option.QueryOption) (int64, error)
	Create(ctx context.Context, entity *T) error
	BatchCreate(ctx context.Context, entities []T) error
	Update(ctx context.Context, id any, value any) error
	BatchUpdate(ctx context.Context, entities []T) error
}

type store[T any] struct {
	db *gorm.DB
}

// ProvideStore builds a Repository bound to db. Services call it directly
// from their constructors.
func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) apply(ctx context.Context, filter *T, opts ...option.QueryOption) *gorm.DB {
	query := s.db.WithContext(ctx).Where(filter)
	for _, opt := range opts {
		query = opt(query)
	}
	return query
}

func (s *store[T]) Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]T, error) {
	var out []T
	if err := s.apply(ctx, filter, opts...).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FindOne returns (nil, nil) when no row matches; callers branch on the
// pointer rather than on gorm.ErrRecordNotFound.
func (s *store[T]) FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error) {
	var out T
	if err := s.apply(ctx, filter, opts...).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) Count(ctx context.Context, filter *T, opts ...option.QueryOption) (int64, error) {
	var count int64
	var model T
	query := s.db.WithContext(ctx).Model(&model).Where(filter)
	for _, opt := range opts {
		query = opt(query)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *store[T]) Create(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Create(entity).Error
}

func (s *store[T]) BatchCreate(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&entities).Error
}

func (s *store[T]) Update(ctx context.Context, id any, value any) error {
	var model T
	return s.db.WithContext(ctx).Model(&model).Where("id = ?", id).Updates(value).Error
}

func (s *store[T]) BatchUpdate(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Save(&entities).Error
}
