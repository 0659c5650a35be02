package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/todo-service/internal/domain"
	"github.com/spec-kit/todo-service/internal/events"
	"github.com/spec-kit/todo-service/internal/repository"
	apperrors "github.com/spec-kit/todo-service/pkg/util/errorutil"
)

// ItemCache caches per-owner lists. Implementations must treat every failure
// as a miss. Invalidate advances the owner's version, and a list stored under
// an older version is never returned by Get.
type ItemCache interface {
	Version(ctx context.Context, owner string) (int64, bool)
	Get(ctx context.Context, owner string, version int64) ([]domain.Item, bool)
	Set(ctx context.Context, owner string, version int64, items []domain.Item)
	Invalidate(ctx context.Context, owner string)
}

// ItemInput describes the writable fields of a todo.
type ItemInput struct {
	Title       string
	Description string
	Status      domain.ItemStatus
	DueDate     *time.Time
}

// ItemService coordinates todo workflows for authenticated subjects.
type ItemService struct {
	items      repository.ItemRepository
	authorizer *ResourceAuthorizer
	cache      ItemCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// ItemDependencies bundles collaborators for the item service.
type ItemDependencies struct {
	ItemRepo   repository.ItemRepository
	Cache      ItemCache
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewItemService constructs the service.
func NewItemService(deps ItemDependencies) *ItemService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemService{
		items:      deps.ItemRepo,
		authorizer: NewResourceAuthorizer(deps.ItemRepo),
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Create stores a new item owned by subject.
func (s *ItemService) Create(ctx context.Context, subject string, in ItemInput) (*domain.Item, error) {
	if subject == "" {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	item := &domain.Item{
		ID:    uuid.NewString(),
		Owner: subject,
	}
	apply(item, in)

	if err := s.items.Create(ctx, item); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.afterMutation(ctx, events.EventItemCreated, item)
	return item, nil
}

// List returns the subject's own items only.
func (s *ItemService) List(ctx context.Context, subject string) ([]domain.Item, error) {
	if subject == "" {
		return nil, apperrors.NewUnauthorized("authentication required")
	}

	// the version is read before the store so a concurrent mutation makes
	// this fill unreachable
	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		version, cacheable = s.cache.Version(ctx, subject)
	}
	if cacheable {
		if items, ok := s.cache.Get(ctx, subject, version); ok {
			return items, nil
		}
	}

	items, err := s.items.ListByOwner(ctx, subject)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if cacheable {
		s.cache.Set(ctx, subject, version, items)
	}
	return items, nil
}

// Get returns one of the subject's items.
func (s *ItemService) Get(ctx context.Context, subject, id string) (*domain.Item, error) {
	return s.authorizer.Authorize(ctx, subject, id)
}

// Update replaces the writable fields of one of the subject's items.
func (s *ItemService) Update(ctx context.Context, subject, id string, in ItemInput) (*domain.Item, error) {
	item, err := s.authorizer.Authorize(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	apply(item, in)

	if err := s.items.Update(ctx, item); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, itemNotFound()
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.afterMutation(ctx, events.EventItemUpdated, item)
	return item, nil
}

// Delete removes one of the subject's items.
func (s *ItemService) Delete(ctx context.Context, subject, id string) error {
	item, err := s.authorizer.Authorize(ctx, subject, id)
	if err != nil {
		return err
	}

	if err := s.items.Delete(ctx, subject, item.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return itemNotFound()
		}
		return apperrors.NewInternalError(err)
	}
	s.afterMutation(ctx, events.EventItemDeleted, item)
	return nil
}

func (s *ItemService) afterMutation(ctx context.Context, eventType events.EventType, item *domain.Item) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, item.Owner)
	}
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{Type: eventType, Subject: item.Owner, ItemID: item.ID})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

func validateInput(in ItemInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return apperrors.NewValidationError("validation failed", map[string]any{"title": "cannot be blank"})
	}
	if in.Status != "" && !in.Status.Valid() {
		return apperrors.NewValidationError("validation failed", map[string]any{"status": "must be PENDING or COMPLETED"})
	}
	return nil
}

// apply never touches Owner.
func apply(item *domain.Item, in ItemInput) {
	item.Title = strings.TrimSpace(in.Title)
	item.Description = strings.TrimSpace(in.Description)
	item.Status = in.Status
	if item.Status == "" {
		item.Status = domain.ItemStatusPending
	}
	item.DueDate = in.DueDate
}
