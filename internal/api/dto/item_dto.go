package dto

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/spec-kit/todo-service/internal/domain"
)

// ItemRequest is the body of create and update calls. Update replaces every
// writable field.
type ItemRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      domain.ItemStatus `json:"status"`
	DueDate     *time.Time        `json:"due_date"`
}

// Validate checks field shapes. Titles of only whitespace are rejected.
func (r ItemRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Description, validation.Length(0, 2000)),
		validation.Field(&r.Status, validation.In(domain.ItemStatusPending, domain.ItemStatusCompleted)),
	)
}

// ItemResponse represents a todo.
type ItemResponse struct {
	ID          string            `json:"id"`
	Owner       string            `json:"owner"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      domain.ItemStatus `json:"status"`
	DueDate     *time.Time        `json:"due_date"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewItemResponse maps a domain item.
func NewItemResponse(item *domain.Item) ItemResponse {
	return ItemResponse{
		ID:          item.ID,
		Owner:       item.Owner,
		Title:       item.Title,
		Description: item.Description,
		Status:      item.Status,
		DueDate:     item.DueDate,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

// NewItemListResponse maps a list, never returning nil.
func NewItemListResponse(items []domain.Item) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for i := range items {
		out = append(out, NewItemResponse(&items[i]))
	}
	return out
}
