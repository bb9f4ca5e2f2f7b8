package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/initdata"
	"github.com/standupbot/report-server-go/internal/model"
	"github.com/standupbot/report-server-go/internal/token"
)

type AuthResult struct {
	AccessToken string
	User        *model.User
}

// AuthService signs users in from a Telegram Mini App launch payload.
type AuthService struct {
	verifier *initdata.Verifier
	enabled  bool
	users    *UserService
	issuer   *token.Issuer
	tokenTTL time.Duration
}

func NewAuthService(
	botToken string,
	includeSignatureField bool,
	users *UserService,
	issuer *token.Issuer,
	tokenTTL time.Duration,
) *AuthService {
	verifier := initdata.NewVerifier(botToken)
	verifier.IncludeSignatureField = includeSignatureField

	return &AuthService{
		verifier: verifier,
		enabled:  botToken != "",
		users:    users,
		issuer:   issuer,
		tokenTTL: tokenTTL,
	}
}

func (s *AuthService) AuthenticateInitData(ctx context.Context, raw string) (*AuthResult, error) {
	if raw == "" {
		return nil, apperrors.MissingRequired("initData")
	}
	if !s.enabled {
		return nil, apperrors.Internal("Telegram authentication is not configured")
	}

	data, err := s.verifier.Verify(raw)
	if err != nil {
		return nil, mapVerifyError(err)
	}
	if data.User == nil || data.User.ID == 0 {
		return nil, apperrors.ValidationError("No user in initData")
	}

	var username, fullName *string
	if data.User.Username != "" {
		username = &data.User.Username
	}
	if name := data.User.FullName(); name != "" {
		fullName = &name
	}

	user, err := s.users.FindOrCreate(ctx, model.CreateUserParams{
		ChatID:   strconv.FormatInt(data.User.ID, 10),
		Username: username,
		FullName: fullName,
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := issueUserToken(s.issuer, user, s.tokenTTL)
	if err != nil {
		return nil, err
	}

	ev := log.Info().
		Str("userId", user.ID).
		Str("chatId", user.ChatID).
		Strs("fields", data.Keys())
	if !data.AuthDate.IsZero() {
		ev = ev.Time("authDate", data.AuthDate)
	}
	ev.Msg("init data login")

	return &AuthResult{AccessToken: accessToken, User: user}, nil
}

// IssueToken mints a token for user with the direct-login lifetime.
func (s *AuthService) IssueToken(user *model.User) (string, error) {
	return issueUserToken(s.issuer, user, s.tokenTTL)
}

func mapVerifyError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, initdata.ErrMissingSignature):
		return apperrors.MissingSignature()
	case errors.Is(err, initdata.ErrInvalidSignature):
		return apperrors.InvalidSignature()
	default:
		return apperrors.ValidationError("Invalid initData").WithCause(err)
	}
}

func userClaims(user *model.User) token.Claims {
	return token.Claims{
		UserID:   user.ID,
		ChatID:   user.ChatID,
		Username: user.Username,
		FullName: user.FullName,
	}
}

func issueUserToken(issuer *token.Issuer, user *model.User, ttl time.Duration) (string, error) {
	accessToken, err := issuer.Issue(userClaims(user), ttl)
	if err != nil {
		return "", apperrors.Internal("Failed to issue token").WithCause(err)
	}
	return accessToken, nil
}
