package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/model"
	"github.com/standupbot/report-server-go/internal/repository"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// FindOrCreate returns the user holding params.ChatID, creating it on first
// sight. Profile fields of an existing user are left untouched. When a
// concurrent caller wins the insert, the lookup is repeated.
func (s *UserService) FindOrCreate(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	if params.ChatID == "" {
		return nil, apperrors.MissingRequired("chat_id")
	}

	user, err := s.userRepo.FindByChatID(ctx, params.ChatID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user != nil {
		return user, nil
	}

	user, err = s.userRepo.Create(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user != nil {
		log.Info().
			Str("userId", user.ID).
			Str("chatId", user.ChatID).
			Msg("user created")
		return user, nil
	}

	user, err = s.userRepo.FindByChatID(ctx, params.ChatID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.Internal("user vanished after conflicting insert").
			WithCause(fmt.Errorf("chat id %s", params.ChatID))
	}
	return user, nil
}

func (s *UserService) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User")
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]model.UserSummary, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return users, nil
}
