package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/todo-service/internal/domain"
)

// MemoryUserRepository is the dev-only fallback used when Postgres is not
// configured. Uniqueness is checked and claimed under one lock.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byUsername map[string]domain.User
	emails     map[string]struct{}
	now        func() time.Time
}

// NewMemoryUserRepository constructs an empty in-memory store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byUsername: make(map[string]domain.User),
		emails:     make(map[string]struct{}),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[user.Username]; taken {
		return ErrDuplicate
	}
	if _, taken := r.emails[user.Email]; taken {
		return ErrDuplicate
	}

	user.CreatedAt = r.now()
	r.byUsername[user.Username] = *user
	r.emails[user.Email] = struct{}{}
	return nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *MemoryUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, userTaken := r.byUsername[username]
	_, emailTaken := r.emails[email]
	return userTaken || emailTaken, nil
}

// MemoryItemRepository is the in-memory counterpart of the items table.
type MemoryItemRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Item
	now   func() time.Time
}

// NewMemoryItemRepository constructs an empty in-memory store.
func NewMemoryItemRepository() *MemoryItemRepository {
	return &MemoryItemRepository{
		items: make(map[string]domain.Item),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryItemRepository) Create(ctx context.Context, item *domain.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return ErrDuplicate
	}
	now := r.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	r.items[item.ID] = cloneItem(*item)
	return nil
}

func (r *MemoryItemRepository) Update(ctx context.Context, item *domain.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[item.ID]
	if !ok || stored.Owner != item.Owner {
		return ErrNotFound
	}
	stored.Title = item.Title
	stored.Description = item.Description
	stored.Status = item.Status
	stored.DueDate = item.DueDate
	stored.UpdatedAt = r.now()
	r.items[item.ID] = cloneItem(stored)

	item.CreatedAt = stored.CreatedAt
	item.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MemoryItemRepository) Delete(ctx context.Context, owner, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[id]
	if !ok || stored.Owner != owner {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	item := cloneItem(stored)
	return &item, nil
}

func (r *MemoryItemRepository) ListByOwner(ctx context.Context, owner string) ([]domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	items := make([]domain.Item, 0)
	for _, stored := range r.items {
		if stored.Owner == owner {
			items = append(items, cloneItem(stored))
		}
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func cloneItem(item domain.Item) domain.Item {
	if item.DueDate != nil {
		due := *item.DueDate
		item.DueDate = &due
	}
	return item
}
