package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/todo-service/internal/domain"
)

// ItemRepository encapsulates todo persistence. Mutations are scoped by owner
// so a row owned by someone else behaves exactly like a missing one.
type ItemRepository interface {
	Create(ctx context.Context, item *domain.Item) error
	Update(ctx context.Context, item *domain.Item) error
	Delete(ctx context.Context, owner, id string) error
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.Item, error)
}

type itemRepository struct {
	db DBTX
}

// NewItemRepository instantiates repository.
func NewItemRepository(db DBTX) ItemRepository {
	return &itemRepository{db: db}
}

const itemColumns = `id, owner_username, title, description, status, due_date, created_at, updated_at`

func (r *itemRepository) Create(ctx context.Context, item *domain.Item) error {
	const query = `
        INSERT INTO items (id, owner_username, title, description, status, due_date)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		item.ID,
		item.Owner,
		item.Title,
		item.Description,
		item.Status,
		item.DueDate,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	return translate(err)
}

func (r *itemRepository) Update(ctx context.Context, item *domain.Item) error {
	const query = `
        UPDATE items SET title=$1, description=$2, status=$3, due_date=$4, updated_at=NOW()
        WHERE id=$5 AND owner_username=$6
        RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		item.Title,
		item.Description,
		item.Status,
		item.DueDate,
		item.ID,
		item.Owner,
	).Scan(&item.UpdatedAt)
	return translate(err)
}

func (r *itemRepository) Delete(ctx context.Context, owner, id string) error {
	const query = `DELETE FROM items WHERE id=$1 AND owner_username=$2`

	cmd, err := r.db.Exec(ctx, query, id, owner)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *itemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id=$1`

	item, err := scanItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return item, nil
}

func (r *itemRepository) ListByOwner(ctx context.Context, owner string) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE owner_username=$1 ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, owner)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var item domain.Item
	if err := row.Scan(
		&item.ID,
		&item.Owner,
		&item.Title,
		&item.Description,
		&item.Status,
		&item.DueDate,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}
