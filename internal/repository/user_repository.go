package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceyewan/minichat/internal/clog"
	"github.com/ceyewan/minichat/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository 用户数据仓储
type UserRepository struct {
	db     *Database
	logger clog.Logger
}

// NewUserRepository 创建用户数据仓储
func NewUserRepository(db *Database) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: clog.Module("user-repository"),
	}
}

// FindByName 按显示名称查找用户，不存在时返回 nil
func (r *UserRepository) FindByName(ctx context.Context, name string) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetDB().WithContext(ctx).Where("name = ?", name).First(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("查找用户失败", clog.Err(err))
		return nil, fmt.Errorf("查找用户失败: %w", err)
	}
	return user, nil
}

// FindByID 按 ID 查找用户，不存在时返回 nil
func (r *UserRepository) FindByID(ctx context.Context, userID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetDB().WithContext(ctx).Where("id = ?", userID).First(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("查找用户失败", clog.Err(err))
		return nil, fmt.Errorf("查找用户失败: %w", err)
	}
	return user, nil
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, name string) (*model.User, error) {
	now := time.Now()
	user := &model.User{
		ID:        uuid.NewString(),
		Name:      name,
		LastSeen:  now,
		CreatedAt: now,
	}

	if err := r.db.GetDB().WithContext(ctx).Create(user).Error; err != nil {
		r.logger.Error("创建用户失败", clog.String("name", name), clog.Err(err))
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	r.logger.Info("用户创建成功", clog.String("user_id", user.ID), clog.String("name", name))
	return user, nil
}

// FindOrCreate 按名称查找用户，不存在则创建
func (r *UserRepository) FindOrCreate(ctx context.Context, name string) (*model.User, error) {
	user, err := r.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	return r.Create(ctx, name)
}

// TouchLastSeen 更新用户最后在线时间
func (r *UserRepository) TouchLastSeen(ctx context.Context, userID string) error {
	err := r.db.GetDB().WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_seen", time.Now()).Error
	if err != nil {
		r.logger.Error("更新最后在线时间失败", clog.String("user_id", userID), clog.Err(err))
		return fmt.Errorf("更新最后在线时间失败: %w", err)
	}
	return nil
}

// ListAll 返回全部用户，按名称排序
func (r *UserRepository) ListAll(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := r.db.GetDB().WithContext(ctx).Order("name ASC").Find(&users).Error
	if err != nil {
		r.logger.Error("查询用户列表失败", clog.Err(err))
		return nil, fmt.Errorf("查询用户列表失败: %w", err)
	}
	return users, nil
}
