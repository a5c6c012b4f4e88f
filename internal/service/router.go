package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ceyewan/minichat/internal/clog"
	"github.com/ceyewan/minichat/internal/config"
	"github.com/ceyewan/minichat/internal/metrics"
	"github.com/ceyewan/minichat/internal/model"
	"github.com/ceyewan/minichat/internal/presence"
	"github.com/ceyewan/minichat/internal/protocol"
	"github.com/ceyewan/minichat/internal/repository"
)

// Router 消息路由引擎
// 处理入站事件：校验寻址、持久化、计算扇出集合并投递。
// 在线状态注册表是唯一的共享可变状态，仓储各自保证内部一致性。
type Router struct {
	users    *repository.UserRepository
	groups   *repository.GroupRepository
	messages *repository.MessageRepository
	unread   *repository.UnreadStore
	registry *presence.Registry
	typing   *TypingTracker
	ids      *snowflake.Node
	logger   clog.Logger

	historyDays int
}

// NewRouter 创建消息路由引擎
func NewRouter(
	cfg config.BusinessConfig,
	users *repository.UserRepository,
	groups *repository.GroupRepository,
	messages *repository.MessageRepository,
	unread *repository.UnreadStore,
	registry *presence.Registry,
) (*Router, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("创建雪花节点失败: %w", err)
	}

	return &Router{
		users:       users,
		groups:      groups,
		messages:    messages,
		unread:      unread,
		registry:    registry,
		typing:      NewTypingTracker(cfg.TypingTTL),
		ids:         node,
		logger:      clog.Module("router"),
		historyDays: cfg.HistoryDays,
	}, nil
}

// Typing 返回输入状态跟踪器
func (r *Router) Typing() *TypingTracker {
	return r.typing
}

// Registry 返回在线状态注册表
func (r *Router) Registry() *presence.Registry {
	return r.registry
}

// Connect 处理用户连接
// 按名称查找或创建用户，注册会话（取代同一用户的旧会话并强制关闭
// 旧连接），向新会话推送 ID 分配和历史消息，再广播上线通知和在线列表。
func (r *Router) Connect(ctx context.Context, userName string, conn presence.Conn) (*presence.Session, error) {
	if userName == "" {
		return nil, fmt.Errorf("用户名不能为空")
	}

	user, err := r.users.FindOrCreate(ctx, userName)
	if err != nil {
		return nil, err
	}

	session, old := r.registry.Connect(user.ID, user.Name, conn)
	if old != nil {
		// 同一用户的旧连接被取代，强制关闭而不是留给超时
		r.logger.Info("用户重复连接，关闭旧连接", clog.String("user_id", user.ID))
		old.Conn.Close()
	}
	metrics.OnlineUsers.Set(float64(r.registry.Count()))

	r.pushEvent(session, protocol.EventUserIDAssigned, &protocol.UserIDAssignedData{
		UserID:   user.ID,
		UserName: user.Name,
	})

	since := time.Now().AddDate(0, 0, -r.historyDays)
	history, err := r.messages.HistoryForUser(ctx, user.ID, since)
	if err != nil {
		// 历史加载失败不阻断连接，客户端可以重新拉取
		r.logger.Error("加载历史消息失败", clog.String("user_id", user.ID), clog.Err(err))
	} else {
		r.pushEvent(session, protocol.EventLoadMessages, &protocol.LoadMessagesData{
			Messages: protocol.FromModels(history),
		})
	}

	r.broadcastEvent(protocol.EventUserConnected, &protocol.UserEventData{
		UserID:   user.ID,
		UserName: user.Name,
	})
	r.broadcastUserList()

	r.logger.Info("用户已连接",
		clog.String("user_id", user.ID),
		clog.String("user_name", user.Name))
	return session, nil
}

// Disconnect 处理连接断开
// 清理工作（注销会话、落盘最后在线时间）严格先于下线广播，
// 保证"断开后立即重连"不会被迟到的下线通知覆盖为离线。
func (r *Router) Disconnect(ctx context.Context, conn presence.Conn) {
	session, ok := r.registry.Disconnect(conn)
	if !ok {
		// 句柄未注册或已被新连接取代，容忍并忽略
		return
	}
	metrics.OnlineUsers.Set(float64(r.registry.Count()))

	if err := r.users.TouchLastSeen(ctx, session.UserID); err != nil {
		r.logger.Error("落盘最后在线时间失败", clog.String("user_id", session.UserID), clog.Err(err))
	}

	r.broadcastEvent(protocol.EventUserDisconnected, &protocol.UserEventData{
		UserID:   session.UserID,
		UserName: session.UserName,
	})
	r.broadcastUserList()

	r.logger.Info("用户已断开", clog.String("user_id", session.UserID))
}

// SendMessage 处理消息发送
func (r *Router) SendMessage(ctx context.Context, sender *presence.Session, in *protocol.SendMessageData, msgType int) error {
	message := &model.Message{
		ID:          r.ids.Generate().Int64(),
		SenderID:    sender.UserID,
		SenderName:  sender.UserName,
		RecipientID: in.RecipientID,
		GroupID:     in.GroupID,
		IsGroup:     in.IsGroup,
		Type:        msgType,
		Content:     in.Content,
		FileName:    in.FileName,
		Duration:    in.Duration,
		CreatedAt:   time.Now(),
	}
	if in.ReplyToID != "" {
		// 被回复消息不做存在性校验，缺失由客户端优雅降级
		if id, ok := protocol.ParseMessageID(in.ReplyToID); ok {
			message.ReplyToID = id
		}
	}

	return r.route(ctx, sender, message)
}

// ForwardMessage 处理消息转发
// 按 ID 加载原消息的内容与类型，以新消息发给新目标并携带溯源引用；
// 原消息不存在时静默忽略。
func (r *Router) ForwardMessage(ctx context.Context, sender *presence.Session, in *protocol.ForwardMessageData) error {
	originalID, ok := protocol.ParseMessageID(in.MessageID)
	if !ok {
		return nil
	}
	original, err := r.messages.GetByID(ctx, originalID)
	if err != nil {
		return err
	}
	if original == nil {
		return nil
	}

	message := &model.Message{
		ID:              r.ids.Generate().Int64(),
		SenderID:        sender.UserID,
		SenderName:      sender.UserName,
		RecipientID:     in.RecipientID,
		GroupID:         in.GroupID,
		IsGroup:         in.IsGroup,
		Type:            original.Type,
		Content:         original.Content,
		FileName:        original.FileName,
		Duration:        original.Duration,
		ForwardedFromID: original.ID,
		CreatedAt:       time.Now(),
	}

	return r.route(ctx, sender, message)
}

// route 校验寻址、持久化并扇出
func (r *Router) route(ctx context.Context, sender *presence.Session, message *model.Message) error {
	class, ok := r.validate(ctx, message)
	if !ok {
		// 校验失败静默丢弃：协议没有请求响应关联，不回传错误
		return nil
	}

	// 接收方正在查看该会话时直接落库为已读
	var recipientSession *presence.Session
	if message.IsDirect() {
		if s, online := r.registry.Find(message.RecipientID); online {
			recipientSession = s
			if s.IsViewing(message.SenderID, false) {
				message.IsRead = true
			}
		}
	}

	// 持久化必须先于扇出完成；失败时只向发送方回传错误事件
	if err := r.messages.Append(ctx, message); err != nil {
		r.pushEvent(sender, protocol.EventReceiveError, &protocol.ErrorData{
			Reason: "message could not be saved",
		})
		return err
	}
	metrics.MessagesRouted.WithLabelValues(class).Inc()

	if message.IsDirect() && !message.IsRead {
		if _, err := r.unread.Incr(ctx, message.RecipientID, message.SenderID); err != nil {
			r.logger.Error("更新未读计数失败", clog.Err(err))
		}
	}

	// 发送即终止发送方的输入状态
	r.typing.Clear(typingKey(message.SenderID, conversationKeyOf(message)))

	r.fanOut(ctx, sender, recipientSession, message)
	return nil
}

// validate 校验寻址方式，返回寻址类型与是否放行
func (r *Router) validate(ctx context.Context, message *model.Message) (string, bool) {
	switch {
	case message.IsDirect():
		return metrics.ClassDirect, true
	case message.IsPrivateGroup():
		member, err := r.groups.IsMember(ctx, message.GroupID, message.SenderID)
		if err != nil {
			r.logger.Error("成员校验失败", clog.String("group_id", message.GroupID), clog.Err(err))
			metrics.MessagesRejected.WithLabelValues("membership_check_failed").Inc()
			return "", false
		}
		if !member {
			r.logger.Warn("非成员向私有群发送消息，已拒绝",
				clog.String("group_id", message.GroupID),
				clog.String("sender_id", message.SenderID))
			metrics.MessagesRejected.WithLabelValues("not_a_member").Inc()
			return "", false
		}
		return metrics.ClassPrivateGroup, true
	case message.IsGlobalGroup():
		return metrics.ClassGlobalGroup, true
	default:
		// 单聊缺少接收方
		metrics.MessagesRejected.WithLabelValues("missing_recipient").Inc()
		return "", false
	}
}

// fanOut 计算扇出集合并逐个投递
// 单个接收方投递失败只记录，不影响其余投递
func (r *Router) fanOut(ctx context.Context, sender, recipientSession *presence.Session, message *model.Message) {
	ev, err := protocol.NewEvent(protocol.EventReceiveMessage, protocol.FromModel(message))
	if err != nil {
		r.logger.Error("编码消息事件失败", clog.Err(err))
		return
	}

	switch {
	case message.IsDirect():
		// 发送方回显 + 在线的接收方；接收方离线时消息已持久化，重连后随历史下发
		r.push(sender, ev)
		if recipientSession != nil {
			if r.push(recipientSession, ev) {
				if err := r.messages.MarkDelivered(ctx, message.ID); err != nil {
					r.logger.Error("标记已投递失败", clog.Err(err))
				}
			}
		}

	case message.IsPrivateGroup():
		members, err := r.groups.ListMembers(ctx, message.GroupID)
		if err != nil {
			r.logger.Error("解析群成员失败", clog.String("group_id", message.GroupID), clog.Err(err))
			return
		}
		for _, userID := range members {
			if session, ok := r.registry.Find(userID); ok {
				r.push(session, ev)
			}
		}

	default:
		// 全局群聊：全部在线会话
		for _, session := range r.registry.ListOnline() {
			r.push(session, ev)
		}
	}
}

// HandleTyping 处理输入状态事件
// 不持久化。单聊只发给指定接收方；全局群发给除发送方外的所有人；
// 私有群与消息路由一致，按成员过滤后再排除发送方。
func (r *Router) HandleTyping(ctx context.Context, sender *presence.Session, in *protocol.TypingData) {
	data := &protocol.UserTypingData{
		SenderID:    sender.UserID,
		SenderName:  sender.UserName,
		RecipientID: in.RecipientID,
		GroupID:     in.GroupID,
		IsGroup:     in.IsGroup,
	}
	ev, err := protocol.NewEvent(protocol.EventUserTyping, data)
	if err != nil {
		return
	}

	switch {
	case !in.IsGroup:
		if in.RecipientID == "" {
			return
		}
		r.typing.Refresh(typingKey(sender.UserID, in.RecipientID))
		if session, ok := r.registry.Find(in.RecipientID); ok {
			r.push(session, ev)
		}

	case in.GroupID != "":
		member, err := r.groups.IsMember(ctx, in.GroupID, sender.UserID)
		if err != nil || !member {
			return
		}
		r.typing.Refresh(typingKey(sender.UserID, in.GroupID))
		members, err := r.groups.ListMembers(ctx, in.GroupID)
		if err != nil {
			return
		}
		for _, userID := range members {
			if userID == sender.UserID {
				continue
			}
			if session, ok := r.registry.Find(userID); ok {
				r.push(session, ev)
			}
		}

	default:
		r.typing.Refresh(typingKey(sender.UserID, globalConversation))
		for _, session := range r.registry.ListOnline() {
			if session.UserID == sender.UserID {
				continue
			}
			r.push(session, ev)
		}
	}
}

// MarkRead 批量标记已读
// 将 counterpart 发给 viewer 的全部未读单聊消息置为已读，清空未读计数，
// 并为每条受影响的消息发出一个已读回执。幂等：重复调用是空操作。
func (r *Router) MarkRead(ctx context.Context, viewerID, counterpartID string) error {
	ids, err := r.messages.MarkConversationRead(ctx, viewerID, counterpartID)
	if err != nil {
		return err
	}

	if err := r.unread.Reset(ctx, viewerID, counterpartID); err != nil {
		r.logger.Error("清空未读计数失败", clog.Err(err))
	}
	if len(ids) == 0 {
		return nil
	}

	counterpartSession, counterpartOnline := r.registry.Find(counterpartID)
	viewerSession, viewerOnline := r.registry.Find(viewerID)

	for _, id := range ids {
		ev, err := protocol.NewEvent(protocol.EventMessageRead, &protocol.MessageReadData{
			MessageID: fmt.Sprintf("%d", id),
			ReaderID:  viewerID,
		})
		if err != nil {
			continue
		}
		// 发送方需要回执更新消息状态，阅读方回显用于多窗口对账
		if counterpartOnline {
			r.push(counterpartSession, ev)
		}
		if viewerOnline {
			r.push(viewerSession, ev)
		}
	}
	return nil
}

// ResolveReadCounterpart 由消息 ID 解析批量已读的对端（旧协议形态的兼容入口）
func (r *Router) ResolveReadCounterpart(ctx context.Context, messageID string) (string, bool) {
	id, ok := protocol.ParseMessageID(messageID)
	if !ok {
		return "", false
	}
	message, err := r.messages.GetByID(ctx, id)
	if err != nil || message == nil {
		return "", false
	}
	return message.SenderID, true
}

// DeleteMessage 删除消息
// 仅原发送方可删除；消息不存在或请求者不是发送方时均为无副作用的
// 空操作，不泄露消息是否存在。删除成功后向全部会话广播删除通知。
func (r *Router) DeleteMessage(ctx context.Context, requester *presence.Session, messageID string) error {
	id, ok := protocol.ParseMessageID(messageID)
	if !ok {
		return nil
	}
	message, err := r.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if message == nil || message.SenderID != requester.UserID {
		return nil
	}

	if err := r.messages.Delete(ctx, id); err != nil {
		return err
	}

	// 删除未读的单聊消息后计数失真，清掉缓存让下次读取重算
	if message.IsDirect() && !message.IsRead {
		if err := r.unread.Reset(ctx, message.RecipientID, message.SenderID); err != nil {
			r.logger.Error("清空未读计数失败", clog.Err(err))
		}
	}

	r.broadcastEvent(protocol.EventMessageDeleted, &protocol.MessageDeletedData{
		MessageID: messageID,
	})
	return nil
}

// ClearChat 清空会话
// isGroup 为真时清空全局群聊，否则清空两个用户之间的单聊。
// 广播携带双方 ID 与群聊标记，客户端自行判断是否影响当前打开的会话。
func (r *Router) ClearChat(ctx context.Context, requester *presence.Session, counterpartID string, isGroup bool) error {
	switch {
	case isGroup:
		if _, err := r.messages.ClearGlobal(ctx); err != nil {
			return err
		}
	case counterpartID != "":
		if _, err := r.messages.ClearDirect(ctx, requester.UserID, counterpartID); err != nil {
			return err
		}
		// 双向未读计数一并清空
		if err := r.unread.Reset(ctx, requester.UserID, counterpartID); err != nil {
			r.logger.Error("清空未读计数失败", clog.Err(err))
		}
		if err := r.unread.Reset(ctx, counterpartID, requester.UserID); err != nil {
			r.logger.Error("清空未读计数失败", clog.Err(err))
		}
	default:
		return nil
	}

	r.broadcastEvent(protocol.EventChatCleared, &protocol.ChatClearedData{
		UserID:        requester.UserID,
		CounterpartID: counterpartID,
		IsGroup:       isGroup,
	})
	return nil
}

// SelectConversation 记录会话当前打开的会话窗口
// 切到某个单聊时立即把对方发来的未读消息标记为已读
func (r *Router) SelectConversation(ctx context.Context, session *presence.Session, targetID string, isGroup bool) error {
	if targetID == "" && !isGroup {
		session.ClearActive()
		return nil
	}
	session.SetActive(targetID, isGroup)

	if !isGroup {
		return r.MarkRead(ctx, session.UserID, targetID)
	}
	return nil
}

// UnreadCount 查询未读计数
func (r *Router) UnreadCount(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	return r.unread.Get(ctx, viewerID, counterpartID)
}

// pushEvent 编码并投递单个事件
func (r *Router) pushEvent(session *presence.Session, eventType protocol.EventType, data any) {
	ev, err := protocol.NewEvent(eventType, data)
	if err != nil {
		r.logger.Error("编码事件失败", clog.String("type", string(eventType)), clog.Err(err))
		return
	}
	r.push(session, ev)
}

// broadcastEvent 向全部在线会话广播事件
func (r *Router) broadcastEvent(eventType protocol.EventType, data any) {
	ev, err := protocol.NewEvent(eventType, data)
	if err != nil {
		r.logger.Error("编码事件失败", clog.String("type", string(eventType)), clog.Err(err))
		return
	}
	for _, session := range r.registry.ListOnline() {
		r.push(session, ev)
	}
}

// broadcastUserList 广播在线用户列表
func (r *Router) broadcastUserList() {
	sessions := r.registry.ListOnline()
	users := make([]protocol.UserInfo, 0, len(sessions))
	for _, session := range sessions {
		users = append(users, protocol.UserInfo{
			UserID:   session.UserID,
			UserName: session.UserName,
			IsOnline: true,
		})
	}
	r.broadcastEvent(protocol.EventUpdateUserList, &protocol.UserListData{Users: users})
}

// push 向单个会话投递，失败记录并计数，绝不阻断其余投递
func (r *Router) push(session *presence.Session, ev *protocol.Event) bool {
	data, err := ev.Encode()
	if err != nil {
		r.logger.Error("编码事件失败", clog.Err(err))
		return false
	}
	if err := session.Conn.Push(data); err != nil {
		metrics.DeliveryFailures.Inc()
		r.logger.Warn("投递失败",
			clog.String("user_id", session.UserID),
			clog.String("type", string(ev.Type)),
			clog.Err(err))
		return false
	}
	return true
}

const globalConversation = "__global__"

func typingKey(senderID, conversation string) string {
	return senderID + "|" + conversation
}

func conversationKeyOf(message *model.Message) string {
	switch {
	case message.IsDirect():
		return message.RecipientID
	case message.IsPrivateGroup():
		return message.GroupID
	default:
		return globalConversation
	}
}
