package model

import (
	"time"
)

// 消息内容类型
const (
	MessageTypeText  = 1
	MessageTypeImage = 2
	MessageTypeVoice = 3
	MessageTypeFile  = 4
)

// User 用户数据模型
type User struct {
	// 用户 ID（主键，UUID）
	ID string `gorm:"primaryKey;size:36;column:id" json:"id"`

	// 显示名称（唯一）
	Name string `gorm:"uniqueIndex;size:50;not null;column:name" json:"name"`

	// 头像 URL
	AvatarURL string `gorm:"size:255;column:avatar_url" json:"avatar_url"`

	// 最后在线时间
	LastSeen time.Time `gorm:"column:last_seen" json:"last_seen"`

	// 创建时间
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName 返回表名
func (User) TableName() string {
	return "users"
}

// Group 群组数据模型
type Group struct {
	// 群组 ID（主键，UUID）
	ID string `gorm:"primaryKey;size:36;column:id" json:"id"`

	// 群组名称（唯一）
	Name string `gorm:"uniqueIndex;size:100;not null;column:name" json:"name"`

	// 群组描述
	Description string `gorm:"size:500;column:description" json:"description"`

	// 创建者 ID
	CreatedBy string `gorm:"size:36;not null;column:created_by" json:"created_by"`

	// 群组头像 URL
	AvatarURL string `gorm:"size:255;column:avatar_url" json:"avatar_url"`

	// 创建时间
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName 返回表名
func (Group) TableName() string {
	return "groups"
}

// GroupMember 群组成员数据模型
// 成员记录是私有群消息路由的唯一依据
type GroupMember struct {
	// 记录 ID（主键）
	ID uint64 `gorm:"primaryKey;autoIncrement;column:id" json:"id"`

	// 群组 ID
	GroupID string `gorm:"uniqueIndex:idx_group_user;size:36;column:group_id" json:"group_id"`

	// 用户 ID
	UserID string `gorm:"uniqueIndex:idx_group_user;index;size:36;column:user_id" json:"user_id"`

	// 是否为管理员
	IsAdmin bool `gorm:"not null;default:false;column:is_admin" json:"is_admin"`

	// 加入时间
	JoinedAt time.Time `gorm:"column:joined_at" json:"joined_at"`
}

// TableName 返回表名
func (GroupMember) TableName() string {
	return "group_members"
}

// Message 消息数据模型
// 寻址方式三选一：单聊（recipient_id 非空且 is_group 为假）、
// 全局群聊（is_group 为真且 group_id 为空）、私有群聊（is_group 为真且 group_id 非空）
type Message struct {
	// 消息 ID（主键，雪花算法生成，保证生成顺序）
	ID int64 `gorm:"primaryKey;column:id" json:"id"`

	// 发送者 ID
	SenderID string `gorm:"index;size:36;not null;column:sender_id" json:"sender_id"`

	// 发送者名称（冗余字段，避免渲染时反查用户表）
	SenderName string `gorm:"size:50;column:sender_name" json:"sender_name"`

	// 接收者 ID（群聊消息为空）
	RecipientID string `gorm:"index;size:36;column:recipient_id" json:"recipient_id"`

	// 群组 ID（为空表示全局群聊）
	GroupID string `gorm:"index;size:36;column:group_id" json:"group_id"`

	// 是否为群聊消息
	IsGroup bool `gorm:"not null;default:false;column:is_group" json:"is_group"`

	// 内容类型 (1:文本, 2:图片, 3:语音, 4:文件)
	Type int `gorm:"not null;default:1;column:type" json:"type"`

	// 消息内容（文本或文件引用 URL）
	Content string `gorm:"type:text;not null;column:content" json:"content"`

	// 文件名（图片/文件消息）
	FileName string `gorm:"size:255;column:file_name" json:"file_name"`

	// 语音时长（秒）
	Duration int `gorm:"column:duration" json:"duration"`

	// 被回复消息的 ID
	ReplyToID int64 `gorm:"column:reply_to_id" json:"reply_to_id"`

	// 被转发消息的 ID
	ForwardedFromID int64 `gorm:"column:forwarded_from_id" json:"forwarded_from_id"`

	// 是否已读
	IsRead bool `gorm:"not null;default:false;column:is_read" json:"is_read"`

	// 是否已在线投递
	Delivered bool `gorm:"not null;default:false;column:delivered" json:"delivered"`

	// 创建时间
	CreatedAt time.Time `gorm:"index;column:created_at" json:"created_at"`
}

// TableName 返回表名
func (Message) TableName() string {
	return "messages"
}

// IsDirect 是否为单聊消息
func (m *Message) IsDirect() bool {
	return !m.IsGroup && m.RecipientID != ""
}

// IsPrivateGroup 是否为私有群聊消息
func (m *Message) IsPrivateGroup() bool {
	return m.IsGroup && m.GroupID != ""
}

// IsGlobalGroup 是否为全局群聊消息
func (m *Message) IsGlobalGroup() bool {
	return m.IsGroup && m.GroupID == ""
}
