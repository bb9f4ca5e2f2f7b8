package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/standupbot/report-server-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByChatID(ctx context.Context, chatID string) (*model.User, error)
	// Create returns nil without error when another user already holds the
	// chat id.
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	List(ctx context.Context) ([]model.UserSummary, error)
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByChatID(ctx context.Context, chatID string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE chat_id = $1`, chatID)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (chat_id, username, full_name, referred_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO NOTHING
		RETURNING *
	`, params.ChatID, params.Username, params.FullName, params.ReferredBy)
	return HandleNotFound(&user, err)
}

func (r *userRepo) List(ctx context.Context) ([]model.UserSummary, error) {
	users := []model.UserSummary{}
	err := r.db.SelectContext(ctx, &users, `
		SELECT id, full_name FROM users ORDER BY created_at
	`)
	return users, err
}
