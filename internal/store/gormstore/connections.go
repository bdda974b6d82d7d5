package gormstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nexosql-backend/internal/models"
	"nexosql-backend/internal/store"
)

func (s *Store) CreateConnection(ctx context.Context, conn *models.Connection) error {
	return translate(s.db.WithContext(ctx).Omit("Chats").Create(conn).Error, "creating connection")
}

func (s *Store) GetConnection(ctx context.Context, id, userID uuid.UUID) (*models.Connection, error) {
	var c models.Connection
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&c).Error
	if err != nil {
		return nil, translate(err, "fetching connection")
	}
	return &c, nil
}

func (s *Store) ListConnections(ctx context.Context, userID uuid.UUID) ([]models.Connection, error) {
	var out []models.Connection
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error
	return out, translate(err, "listing connections")
}

func (s *Store) CountConnections(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Connection{}).Where("user_id = ?", userID).Count(&n).Error
	return n, translate(err, "counting connections")
}

func (s *Store) UpdateConnection(ctx context.Context, conn *models.Connection) error {
	res := s.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ? AND user_id = ?", conn.ID, conn.UserID).
		Updates(map[string]interface{}{
			"name":               conn.Name,
			"engine":             conn.Engine,
			"host":               conn.Host,
			"port":               conn.Port,
			"database_name":      conn.DatabaseName,
			"username":           conn.Username,
			"encrypted_password": conn.EncryptedPassword,
			"ssl_mode":           conn.SSLMode,
			"status":             conn.Status,
		})
	return affected(res, "updating connection")
}

func (s *Store) UpdateConnectionStatus(ctx context.Context, id, userID uuid.UUID, status string, testedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"status": status, "last_tested_at": testedAt})
	return affected(res, "updating connection status")
}

// DeleteConnection removes the connection, its chats and their messages.
func (s *Store) DeleteConnection(ctx context.Context, id, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Connection{}).Where("id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
			return translate(err, "checking connection")
		}
		if n == 0 {
			return store.ErrNotFound
		}
		chats := tx.Model(&models.Chat{}).Select("id").Where("connection_id = ?", id)
		if err := tx.Where("chat_id IN (?)", chats).Delete(&models.ChatMessage{}).Error; err != nil {
			return translate(err, "deleting connection messages")
		}
		if err := tx.Where("connection_id = ?", id).Delete(&models.Chat{}).Error; err != nil {
			return translate(err, "deleting connection chats")
		}
		return affected(tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Connection{}), "deleting connection")
	})
}

func (s *Store) CountConnectionsByEngine(ctx context.Context) ([]store.EngineCount, error) {
	var rows []store.EngineCount
	err := s.db.WithContext(ctx).Model(&models.Connection{}).
		Select("engine, COUNT(*) AS count").
		Group("engine").
		Order("count DESC").
		Scan(&rows).Error
	return rows, translate(err, "counting connections by engine")
}
