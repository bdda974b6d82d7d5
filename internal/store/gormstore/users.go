package gormstore

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nexosql-backend/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return translate(s.db.WithContext(ctx).Omit("Connections", "Chats", "Subscriptions", "Tickets").Create(user).Error, "creating user")
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err, "fetching user by id")
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err, "fetching user by email")
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"email":         user.Email,
		"name":          user.Name,
		"password_hash": user.PasswordHash,
		"role":          user.Role,
	})
	return affected(res, "updating user")
}

// DeleteUser removes the user and everything it owns in one transaction.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chats := tx.Model(&models.Chat{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("chat_id IN (?)", chats).Delete(&models.ChatMessage{}).Error; err != nil {
			return translate(err, "deleting user messages")
		}
		for _, owned := range []interface{}{&models.Chat{}, &models.Connection{}, &models.Subscription{}, &models.SupportTicket{}} {
			if err := tx.Where("user_id = ?", id).Delete(owned).Error; err != nil {
				return translate(err, "deleting user dependents")
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.User{})
		if err := affected(res, "deleting user"); err != nil {
			return err
		}
		s.log.WithField("user_id", id).Info("user deleted with dependents")
		return nil
	})
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, translate(err, "counting users")
}
