package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceyewan/minichat/internal/clog"
	"github.com/ceyewan/minichat/internal/model"
	"gorm.io/gorm"
)

// MessageRepository 消息数据仓储
type MessageRepository struct {
	db     *Database
	logger clog.Logger
}

// NewMessageRepository 创建消息数据仓储
func NewMessageRepository(db *Database) *MessageRepository {
	return &MessageRepository{
		db:     db,
		logger: clog.Module("message-repository"),
	}
}

// Append 持久化一条消息
// 写入失败必须向上传播，路由引擎依赖该结果决定是否扇出
func (r *MessageRepository) Append(ctx context.Context, message *model.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	if err := r.db.GetDB().WithContext(ctx).Create(message).Error; err != nil {
		r.logger.Error("保存消息失败",
			clog.Int64("message_id", message.ID),
			clog.Err(err))
		return fmt.Errorf("保存消息失败: %w", err)
	}
	return nil
}

// GetByID 获取单条消息，不存在时返回 nil
func (r *MessageRepository) GetByID(ctx context.Context, messageID int64) (*model.Message, error) {
	message := &model.Message{}
	err := r.db.GetDB().WithContext(ctx).Where("id = ?", messageID).First(message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("获取消息失败", clog.Int64("message_id", messageID), clog.Err(err))
		return nil, fmt.Errorf("获取消息失败: %w", err)
	}
	return message, nil
}

// HistoryForUser 返回用户可见的历史消息
// 包含全部群聊消息和该用户参与的单聊消息，按消息 ID 升序（ID 即生成顺序）
func (r *MessageRepository) HistoryForUser(ctx context.Context, userID string, since time.Time) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.GetDB().WithContext(ctx).
		Where("created_at >= ? AND (is_group = ? OR sender_id = ? OR recipient_id = ?)",
			since, true, userID, userID).
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		r.logger.Error("查询历史消息失败", clog.String("user_id", userID), clog.Err(err))
		return nil, fmt.Errorf("查询历史消息失败: %w", err)
	}
	return messages, nil
}

// MarkRead 将单条消息标记为已读
func (r *MessageRepository) MarkRead(ctx context.Context, messageID int64) error {
	err := r.db.GetDB().WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", messageID).
		Update("is_read", true).Error
	if err != nil {
		r.logger.Error("标记已读失败", clog.Int64("message_id", messageID), clog.Err(err))
		return fmt.Errorf("标记已读失败: %w", err)
	}
	return nil
}

// MarkDelivered 将单条消息标记为已在线投递
func (r *MessageRepository) MarkDelivered(ctx context.Context, messageID int64) error {
	err := r.db.GetDB().WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", messageID).
		Update("delivered", true).Error
	if err != nil {
		return fmt.Errorf("标记已投递失败: %w", err)
	}
	return nil
}

// MarkConversationRead 批量标记单聊消息为已读
// 把 counterpart 发给 viewer 的全部未读单聊消息置为已读，返回受影响的消息 ID
func (r *MessageRepository) MarkConversationRead(ctx context.Context, viewerID, counterpartID string) ([]int64, error) {
	var ids []int64
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&model.Message{}).
			Where("is_group = ? AND sender_id = ? AND recipient_id = ? AND is_read = ?",
				false, counterpartID, viewerID, false).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&model.Message{}).
			Where("id IN ?", ids).
			Update("is_read", true).Error
	})
	if err != nil {
		r.logger.Error("批量标记已读失败",
			clog.String("viewer_id", viewerID),
			clog.String("counterpart_id", counterpartID),
			clog.Err(err))
		return nil, fmt.Errorf("批量标记已读失败: %w", err)
	}
	return ids, nil
}

// CountUnread 统计 counterpart 发给 viewer 的未读单聊消息数量
func (r *MessageRepository) CountUnread(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	var count int64
	err := r.db.GetDB().WithContext(ctx).
		Model(&model.Message{}).
		Where("is_group = ? AND sender_id = ? AND recipient_id = ? AND is_read = ?",
			false, counterpartID, viewerID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计未读消息失败: %w", err)
	}
	return count, nil
}

// Delete 硬删除单条消息
func (r *MessageRepository) Delete(ctx context.Context, messageID int64) error {
	err := r.db.GetDB().WithContext(ctx).
		Where("id = ?", messageID).
		Delete(&model.Message{}).Error
	if err != nil {
		r.logger.Error("删除消息失败", clog.Int64("message_id", messageID), clog.Err(err))
		return fmt.Errorf("删除消息失败: %w", err)
	}
	return nil
}

// ClearGlobal 删除全部全局群聊消息
func (r *MessageRepository) ClearGlobal(ctx context.Context) (int64, error) {
	result := r.db.GetDB().WithContext(ctx).
		Where("is_group = ? AND group_id = ?", true, "").
		Delete(&model.Message{})
	if result.Error != nil {
		r.logger.Error("清空全局消息失败", clog.Err(result.Error))
		return 0, fmt.Errorf("清空全局消息失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ClearDirect 删除两个用户之间的全部单聊消息
func (r *MessageRepository) ClearDirect(ctx context.Context, userID, otherUserID string) (int64, error) {
	result := r.db.GetDB().WithContext(ctx).
		Where("is_group = ? AND ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))",
			false, userID, otherUserID, otherUserID, userID).
		Delete(&model.Message{})
	if result.Error != nil {
		r.logger.Error("清空单聊消息失败", clog.Err(result.Error))
		return 0, fmt.Errorf("清空单聊消息失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan 删除早于 cutoff 的消息，返回删除数量
// 由保留期清理任务周期性调用
func (r *MessageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.GetDB().WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.Message{})
	if result.Error != nil {
		r.logger.Error("清理过期消息失败", clog.Err(result.Error))
		return 0, fmt.Errorf("清理过期消息失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}
