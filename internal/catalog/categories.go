package catalog

import (
	"context"
	"fmt"
	"log"
	"strings"

	"astrixo/admin/internal/store"
	"astrixo/admin/internal/util"
)

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	docs, err := s.store.List(ctx, CategoriesCollection, store.Query{OrderBy: "name"})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]Category, 0, len(docs))
	for _, doc := range docs {
		var cat Category
		if err := doc.Decode(&cat); err != nil {
			log.Printf("catalog: skip category: %v", err)
			continue
		}
		cat.ID = doc.ID
		out = append(out, cat)
	}
	return out, nil
}

func (s *Service) Category(ctx context.Context, id string) (Category, error) {
	doc, err := s.store.Get(ctx, categoryPath(id))
	if err != nil {
		return Category{}, fmt.Errorf("get category %s: %w", id, err)
	}
	var cat Category
	if err := doc.Decode(&cat); err != nil {
		return Category{}, err
	}
	cat.ID = doc.ID
	return cat, nil
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	if err := util.Validate(in); err != nil {
		return Category{}, err
	}
	cat := Category{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now().UTC(),
	}
	id, err := s.store.Create(ctx, CategoriesCollection, store.Fields{
		"name":        cat.Name,
		"description": cat.Description,
		"createdAt":   cat.CreatedAt,
	})
	if err != nil {
		return Category{}, fmt.Errorf("create category: %w", err)
	}
	cat.ID = id
	return cat, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (Category, error) {
	if err := util.Validate(in); err != nil {
		return Category{}, err
	}
	err := s.store.Update(ctx, categoryPath(id), store.Fields{
		"name":        strings.TrimSpace(in.Name),
		"description": strings.TrimSpace(in.Description),
	})
	if err != nil {
		return Category{}, fmt.Errorf("update category %s: %w", id, err)
	}
	return s.Category(ctx, id)
}

// DeleteCategory removes only the category. Courses keep their categoryId.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, categoryPath(id)); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return nil
}
