package protocol

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/ceyewan/minichat/internal/model"
)

// EventType WebSocket 事件类型
type EventType string

// 入站事件（客户端 -> 服务端）
const (
	EventConnect            EventType = "connect"
	EventSendMessage        EventType = "send-message"
	EventSendImage          EventType = "send-image"
	EventSendVoice          EventType = "send-voice"
	EventSendFile           EventType = "send-file"
	EventTyping             EventType = "typing"
	EventMarkRead           EventType = "mark-read"
	EventDeleteMessage      EventType = "delete-message"
	EventClearChat          EventType = "clear-chat"
	EventReplyMessage       EventType = "reply-message"
	EventForwardMessage     EventType = "forward-message"
	EventSelectConversation EventType = "select-conversation"
	EventPing               EventType = "ping"
)

// 出站事件（服务端 -> 客户端）
const (
	EventUserIDAssigned   EventType = "user-id-assigned"
	EventLoadMessages     EventType = "load-messages"
	EventReceiveMessage   EventType = "receive-message"
	EventUserConnected    EventType = "user-connected"
	EventUserDisconnected EventType = "user-disconnected"
	EventUpdateUserList   EventType = "update-user-list"
	EventUserTyping       EventType = "user-typing"
	EventMessageRead      EventType = "message-read"
	EventMessageDeleted   EventType = "message-deleted"
	EventChatCleared      EventType = "chat-cleared"
	EventReceiveError     EventType = "receive-error"
	EventPong             EventType = "pong"
)

// Event WebSocket 事件信封
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent 构造事件信封，data 为 nil 时省略数据段
// 编码失败只可能来自不可序列化的内部类型，视为编程错误
func NewEvent(eventType EventType, data any) (*Event, error) {
	ev := &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		ev.Data = raw
	}
	return ev, nil
}

// Encode 编码整个事件信封
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ConnectData 连接事件数据
type ConnectData struct {
	UserName string `json:"user_name"`
}

// SendMessageData 发送消息事件数据
// send-message/send-image/send-voice/send-file/reply-message 共用
type SendMessageData struct {
	Content     string `json:"content"`
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	IsGroup     bool   `json:"is_group,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	ReplyToID   string `json:"reply_to_id,omitempty"`
}

// TypingData 输入状态事件数据
type TypingData struct {
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	IsGroup     bool   `json:"is_group,omitempty"`
}

// MarkReadData 标记已读事件数据
// 优先使用 counterpart_id 做整个会话的批量已读；
// 仅携带 message_id 时由服务端解析出对端后再批量处理
type MarkReadData struct {
	CounterpartID string `json:"counterpart_id,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
}

// DeleteMessageData 删除消息事件数据
type DeleteMessageData struct {
	MessageID string `json:"message_id"`
}

// ClearChatData 清空会话事件数据
type ClearChatData struct {
	CounterpartID string `json:"counterpart_id,omitempty"`
	IsGroup       bool   `json:"is_group,omitempty"`
}

// ForwardMessageData 转发消息事件数据
type ForwardMessageData struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	IsGroup     bool   `json:"is_group,omitempty"`
}

// SelectConversationData 切换当前会话窗口事件数据
type SelectConversationData struct {
	TargetID string `json:"target_id"`
	IsGroup  bool   `json:"is_group,omitempty"`
}

// UserIDAssignedData 用户 ID 分配通知
type UserIDAssignedData struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// UserEventData 用户上下线通知
type UserEventData struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// UserTypingData 输入状态通知
type UserTypingData struct {
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	IsGroup     bool   `json:"is_group,omitempty"`
}

// MessageReadData 已读回执通知
type MessageReadData struct {
	MessageID string `json:"message_id"`
	ReaderID  string `json:"reader_id"`
}

// MessageDeletedData 消息删除通知
type MessageDeletedData struct {
	MessageID string `json:"message_id"`
}

// ChatClearedData 会话清空通知
// 携带双方 ID 或群聊标记，客户端据此判断是否影响当前打开的会话
type ChatClearedData struct {
	UserID        string `json:"user_id"`
	CounterpartID string `json:"counterpart_id,omitempty"`
	IsGroup       bool   `json:"is_group,omitempty"`
}

// ErrorData 错误通知
type ErrorData struct {
	Reason string `json:"reason"`
}

// UserInfo 在线用户列表条目
type UserInfo struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	IsOnline  bool   `json:"is_online"`
}

// UserListData 在线用户列表通知
type UserListData struct {
	Users []UserInfo `json:"users"`
}

// MessageData 消息的线上表示
// 消息 ID 以字符串传输，避免 int64 在 JavaScript 中丢失精度
type MessageData struct {
	ID              string `json:"id"`
	SenderID        string `json:"sender_id"`
	SenderName      string `json:"sender_name"`
	RecipientID     string `json:"recipient_id,omitempty"`
	GroupID         string `json:"group_id,omitempty"`
	IsGroup         bool   `json:"is_group"`
	Type            int    `json:"type"`
	Content         string `json:"content"`
	FileName        string `json:"file_name,omitempty"`
	Duration        int    `json:"duration,omitempty"`
	ReplyToID       string `json:"reply_to_id,omitempty"`
	ForwardedFromID string `json:"forwarded_from_id,omitempty"`
	IsRead          bool   `json:"is_read"`
	Timestamp       int64  `json:"timestamp"`
}

// LoadMessagesData 历史消息推送
type LoadMessagesData struct {
	Messages []*MessageData `json:"messages"`
}

// FromModel 将存储模型转换为线上表示
func FromModel(m *model.Message) *MessageData {
	data := &MessageData{
		ID:          strconv.FormatInt(m.ID, 10),
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		RecipientID: m.RecipientID,
		GroupID:     m.GroupID,
		IsGroup:     m.IsGroup,
		Type:        m.Type,
		Content:     m.Content,
		FileName:    m.FileName,
		Duration:    m.Duration,
		IsRead:      m.IsRead,
		Timestamp:   m.CreatedAt.Unix(),
	}
	if m.ReplyToID != 0 {
		data.ReplyToID = strconv.FormatInt(m.ReplyToID, 10)
	}
	if m.ForwardedFromID != 0 {
		data.ForwardedFromID = strconv.FormatInt(m.ForwardedFromID, 10)
	}
	return data
}

// FromModels 批量转换存储模型
func FromModels(messages []*model.Message) []*MessageData {
	out := make([]*MessageData, 0, len(messages))
	for _, m := range messages {
		out = append(out, FromModel(m))
	}
	return out
}

// ParseMessageID 解析线上表示中的消息 ID
func ParseMessageID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
