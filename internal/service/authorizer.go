package service

import (
	"context"
	"errors"

	"github.com/spec-kit/todo-service/internal/domain"
	"github.com/spec-kit/todo-service/internal/repository"
	apperrors "github.com/spec-kit/todo-service/pkg/util/errorutil"
)

// ResourceAuthorizer resolves an item for a verified subject. A missing item
// and someone else's item are reported identically.
type ResourceAuthorizer struct {
	items repository.ItemRepository
}

// NewResourceAuthorizer constructs the authorizer.
func NewResourceAuthorizer(items repository.ItemRepository) *ResourceAuthorizer {
	return &ResourceAuthorizer{items: items}
}

// Authorize returns the item when subject owns it.
func (a *ResourceAuthorizer) Authorize(ctx context.Context, subject, id string) (*domain.Item, error) {
	if subject == "" {
		return nil, apperrors.NewUnauthorized("authentication required")
	}

	item, err := a.items.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, itemNotFound()
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !item.OwnedBy(subject) {
		return nil, itemNotFound()
	}
	return item, nil
}

func itemNotFound() error {
	return apperrors.NewNotFound("item", nil)
}
