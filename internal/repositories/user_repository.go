package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"trade-market/internal/models"
)

// UserRepository stores the identities seen through authentication.
type UserRepository interface {
	UpsertUser(ctx context.Context, user models.User) (models.User, error)
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// UpsertUser inserts the user or refreshes its name and email.
func (r *UserRepo) UpsertUser(ctx context.Context, user models.User) (models.User, error) {
	var out models.User
	err := r.db.GetContext(ctx, &out, `INSERT INTO users (id, name, email) VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, updated_at = NOW()
        RETURNING id, name, email, created_at, updated_at`, user.ID, user.Name, user.Email)
	return out, err
}

// GetUsers fetches the users that exist among ids; unknown ids are skipped.
func (r *UserRepo) GetUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, name, email, created_at, updated_at FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return users, err
}
