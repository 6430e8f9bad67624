package services

import (
	"context"
	"fmt"
	"strings"

	"finanzas/internal/core"
	"finanzas/internal/storage"
)

// CategoryService manages the category catalogue.
type CategoryService struct {
	storage *storage.SQLiteRepository
}

func NewCategoryService(storage *storage.SQLiteRepository) *CategoryService {
	return &CategoryService{storage: storage}
}

// CreateCategory creates a category, or returns the existing one when
// the name is already taken. Names are trimmed before use.
func (s *CategoryService) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	c := core.Category{Name: strings.TrimSpace(name)}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return s.storage.CreateCategory(ctx, c.Name)
}

func (s *CategoryService) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	return s.storage.GetCategory(ctx, id)
}

func (s *CategoryService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.storage.ListCategories(ctx)
}

// DeleteCategory removes a category. Categories referenced by a
// transaction or budget cannot be deleted.
func (s *CategoryService) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.storage.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return nil
}
