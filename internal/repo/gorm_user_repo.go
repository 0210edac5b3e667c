package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/realtime-chat/api-server/internal/models"
	"gorm.io/gorm"
)

// GormUserRepo はユーザーアカウントをGORM（SQLite）で永続化します
type GormUserRepo struct{ db *gorm.DB }

func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

// Migrate はusersテーブルを作成・更新します
func (ur *GormUserRepo) Migrate() error {
	return ur.db.AutoMigrate(&models.User{})
}

func (ur *GormUserRepo) CreateUser(ctx context.Context, user models.User) error {
	if err := ur.db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (ur *GormUserRepo) GetUser(ctx context.Context, userId string) (models.User, bool, error) {
	var u models.User
	err := ur.db.WithContext(ctx).First(&u, "user_id = ?", userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to find user: %w", err)
	}
	return u, true, nil
}

func (ur *GormUserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, bool, error) {
	var u models.User
	err := ur.db.WithContext(ctx).First(&u, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to find user by email: %w", err)
	}
	return u, true, nil
}

func (ur *GormUserRepo) FindTaken(ctx context.Context, excludeId, username, email string) (models.User, bool, error) {
	var u models.User
	q := ur.db.WithContext(ctx).Where("username = ? OR email = ?", username, email)
	if excludeId != "" {
		q = q.Where("user_id <> ?", excludeId)
	}
	err := q.First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to check user conflicts: %w", err)
	}
	return u, true, nil
}

func (ur *GormUserRepo) UpdateUser(ctx context.Context, user models.User) error {
	result := ur.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", user.UserId).
		Updates(map[string]any{"username": user.Username, "email": user.Email})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (ur *GormUserRepo) DeleteUser(ctx context.Context, userId string) error {
	result := ur.db.WithContext(ctx).Delete(&models.User{}, "user_id = ?", userId)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
