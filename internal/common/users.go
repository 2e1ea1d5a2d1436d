package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"go.uber.org/zap"
)

type UserLookup interface {
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// ResolveUser accepts either a user id or an email, as the CLIs do
func ResolveUser(ctx context.Context, users UserLookup, idOrEmail string) (*models.User, error) {
	idOrEmail = strings.TrimSpace(idOrEmail)
	if idOrEmail == "" {
		return nil, fmt.Errorf("user id or email is required")
	}

	if strings.Contains(idOrEmail, "@") {
		zap.L().Info("Looking up user by email", zap.String("email", idOrEmail))
		user, err := users.GetUserByEmail(ctx, idOrEmail)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return user, nil
	}

	user, err := users.GetUserById(ctx, idOrEmail)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("user %s not found: %w", idOrEmail, err)
		}
		return nil, err
	}
	return user, nil
}
