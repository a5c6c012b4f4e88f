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

// ErrGroupNameTaken 表示群组名称已被占用
var ErrGroupNameTaken = errors.New("group name already exists")

// ErrAlreadyMember 表示用户已在群组中
var ErrAlreadyMember = errors.New("user is already a group member")

// GroupRepository 群组数据仓储
type GroupRepository struct {
	db     *Database
	logger clog.Logger
}

// NewGroupRepository 创建群组数据仓储
func NewGroupRepository(db *Database) *GroupRepository {
	return &GroupRepository{
		db:     db,
		logger: clog.Module("group-repository"),
	}
}

// CreateGroup 创建群组
// 创建者在同一事务内被写入为管理员成员
func (r *GroupRepository) CreateGroup(ctx context.Context, name, description, createdBy string) (*model.Group, error) {
	now := time.Now()
	group := &model.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   now,
	}

	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Group{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrGroupNameTaken
		}

		if err := tx.Create(group).Error; err != nil {
			return err
		}

		member := &model.GroupMember{
			GroupID:  group.ID,
			UserID:   createdBy,
			IsAdmin:  true,
			JoinedAt: now,
		}
		return tx.Create(member).Error
	})
	if err != nil {
		if errors.Is(err, ErrGroupNameTaken) {
			return nil, err
		}
		r.logger.Error("创建群组失败", clog.String("name", name), clog.Err(err))
		return nil, fmt.Errorf("创建群组失败: %w", err)
	}

	r.logger.Info("群组创建成功",
		clog.String("group_id", group.ID),
		clog.String("name", name),
		clog.String("created_by", createdBy))
	return group, nil
}

// GetGroup 获取群组，不存在时返回 nil
func (r *GroupRepository) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	group := &model.Group{}
	err := r.db.GetDB().WithContext(ctx).Where("id = ?", groupID).First(group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("获取群组失败", clog.Err(err))
		return nil, fmt.Errorf("获取群组失败: %w", err)
	}
	return group, nil
}

// AddMember 添加群组成员，重复添加返回 ErrAlreadyMember
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string, isAdmin bool) error {
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.GroupMember{}).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("检查成员失败: %w", err)
		}
		if count > 0 {
			return ErrAlreadyMember
		}

		member := &model.GroupMember{
			GroupID:  groupID,
			UserID:   userID,
			IsAdmin:  isAdmin,
			JoinedAt: time.Now(),
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("添加成员失败: %w", err)
		}
		return nil
	})
}

// RemoveMember 移除群组成员
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	result := r.db.GetDB().WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&model.GroupMember{})
	if result.Error != nil {
		r.logger.Error("移除成员失败", clog.Err(result.Error))
		return fmt.Errorf("移除成员失败: %w", result.Error)
	}
	return nil
}

// ListMembers 返回群组全部成员的用户 ID
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	var userIDs []string
	err := r.db.GetDB().WithContext(ctx).
		Model(&model.GroupMember{}).
		Where("group_id = ?", groupID).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		r.logger.Error("查询群组成员失败", clog.String("group_id", groupID), clog.Err(err))
		return nil, fmt.Errorf("查询群组成员失败: %w", err)
	}
	return userIDs, nil
}

// ListUserGroups 返回用户加入的全部群组
func (r *GroupRepository) ListUserGroups(ctx context.Context, userID string) ([]*model.Group, error) {
	var groups []*model.Group
	err := r.db.GetDB().WithContext(ctx).
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID).
		Find(&groups).Error
	if err != nil {
		r.logger.Error("查询用户群组失败", clog.String("user_id", userID), clog.Err(err))
		return nil, fmt.Errorf("查询用户群组失败: %w", err)
	}
	return groups, nil
}

// IsMember 检查用户是否为群组成员
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var count int64
	err := r.db.GetDB().WithContext(ctx).
		Model(&model.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		r.logger.Error("检查群组成员失败", clog.Err(err))
		return false, fmt.Errorf("检查群组成员失败: %w", err)
	}
	return count > 0, nil
}

// IsAdmin 检查用户是否为群组管理员
func (r *GroupRepository) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	member := &model.GroupMember{}
	err := r.db.GetDB().WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("检查群组管理员失败: %w", err)
	}
	return member.IsAdmin, nil
}

// UpdateGroup 更新群组信息，改名时校验名称唯一
func (r *GroupRepository) UpdateGroup(ctx context.Context, groupID, name, description, avatarURL string) error {
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		group := &model.Group{}
		if err := tx.Where("id = ?", groupID).First(group).Error; err != nil {
			return fmt.Errorf("群组不存在: %w", err)
		}

		if group.Name != name {
			var count int64
			if err := tx.Model(&model.Group{}).
				Where("name = ? AND id <> ?", name, groupID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrGroupNameTaken
			}
		}

		updates := map[string]any{
			"name":        name,
			"description": description,
			"avatar_url":  avatarURL,
		}
		return tx.Model(&model.Group{}).Where("id = ?", groupID).Updates(updates).Error
	})
}

// DeleteGroup 删除群组及其成员记录，仅创建者可删除
func (r *GroupRepository) DeleteGroup(ctx context.Context, groupID, userID string) (bool, error) {
	deleted := false
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		group := &model.Group{}
		if err := tx.Where("id = ?", groupID).First(group).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if group.CreatedBy != userID {
			return nil
		}

		if err := tx.Where("group_id = ?", groupID).Delete(&model.GroupMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", groupID).Delete(&model.Group{}).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		r.logger.Error("删除群组失败", clog.String("group_id", groupID), clog.Err(err))
		return false, fmt.Errorf("删除群组失败: %w", err)
	}
	return deleted, nil
}
