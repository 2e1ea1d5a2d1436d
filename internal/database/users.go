/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.Id, &user.Name, &user.Email, &user.ParentUserId, &user.CardOrderStatus,
		&user.CardId, &user.VerificationStatus, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) queryUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		zap.L().Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			zap.L().Error("Failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan user row: %w", err)
		}
		users = append(users, *user)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during user row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	zap.L().Debug("Querying users")

	users, err := s.queryUsers(ctx, queryListUsers)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Service) ListSubUsers(ctx context.Context, parentUserId string) ([]models.User, error) {
	zap.L().Debug("Querying sub-users", zap.String("parent_user_id", parentUserId))
	return s.queryUsers(ctx, queryListSubUsers, parentUserId)
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	zap.L().Debug("Querying user by ID", zap.String("user_id", userId))

	user, err := scanUser(s.db.QueryRowContext(ctx, s.rebind(queryGetUserById), userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, userId)
		}
		zap.L().Error("Failed to query user by ID", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by ID: %w", err)
	}

	zap.L().Debug("Retrieved user by ID", zap.String("user_id", userId), zap.String("name", user.Name))
	return user, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	zap.L().Debug("Querying user by email", zap.String("email", email))

	user, err := scanUser(s.db.QueryRowContext(ctx, s.rebind(queryGetUserByEmail), email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, email)
		}
		zap.L().Error("Failed to query user by email", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by email: %w", err)
	}

	return user, nil
}

// CreateUser inserts a main user, or a sub-user when ParentUserId is set.
// Only one level of hierarchy is allowed.
func (s *Service) CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error) {
	if params.ParentUserId != "" {
		parent, err := s.GetUserById(ctx, params.ParentUserId)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrInvalidParent, err)
		}
		if parent.IsSubUser() {
			return nil, fmt.Errorf("%w: %s is itself a sub-user", store.ErrInvalidParent, parent.Id)
		}
	}

	verification := params.VerificationStatus
	if verification == "" {
		verification = "pending"
	}

	userId := uuid.New().String()
	createdAt := now()

	zap.L().Info("Creating user",
		zap.String("id", userId),
		zap.String("name", params.Name),
		zap.String("email", params.Email),
		zap.String("parent_user_id", params.ParentUserId))

	_, err := s.db.ExecContext(ctx, s.rebind(queryInsertUser),
		userId, params.Name, params.Email, nullable(params.ParentUserId), models.CardNotOrdered,
		verification, createdAt, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrDuplicateUser, params.Email)
		}
		zap.L().Error("Failed to insert user", zap.String("email", params.Email), zap.Error(err))
		return nil, fmt.Errorf("unable to insert user: %w", err)
	}

	zap.L().Info("User created successfully", zap.String("id", userId), zap.String("email", params.Email))
	return s.GetUserById(ctx, userId)
}

// MapCard links a physical card to a user whose card has been ordered, moving it to activated.
func (s *Service) MapCard(ctx context.Context, params store.MapCardParams) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, s.rebind(queryMapCard),
		params.CardId, models.CardActivated, now(), params.UserId,
		models.CardOrdered, models.CardShipped, models.CardDelivered)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrCardAlreadyMapped, params.CardId)
		}
		return nil, fmt.Errorf("failed to map card: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, store.ErrCardStatusChanged
	}

	user, err := scanUser(tx.QueryRowContext(ctx, s.rebind(queryGetUserById), params.UserId))
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Card mapped",
		zap.String("user_id", params.UserId),
		zap.String("card_id", params.CardId))
	return user, nil
}
