package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ceyewan/minichat/internal/clog"
	"github.com/ceyewan/minichat/internal/config"
	"github.com/ceyewan/minichat/internal/metrics"
	"github.com/ceyewan/minichat/internal/model"
	"github.com/ceyewan/minichat/internal/presence"
	"github.com/ceyewan/minichat/internal/protocol"
	"github.com/ceyewan/minichat/internal/service"
	"github.com/gorilla/websocket"
)

// Connection 单个 WebSocket 连接
// 实现 presence.Conn，路由引擎通过 Push 向它投递事件
type Connection struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	// 完成 connect 握手后绑定的会话，只在读协程中读写
	session *presence.Session
}

// Push 将事件写入发送队列
// 队列已满说明对端长期不消费，关闭连接并报告失败；
// 单个慢连接绝不阻塞扇出中的其他投递。
func (c *Connection) Push(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	case c.send <- data:
		return nil
	default:
		c.Close()
		return errors.New("send queue full")
	}
}

// Close 关闭连接，可安全重复调用
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// eventHandler 入站事件处理函数
type eventHandler func(ctx context.Context, conn *Connection, data json.RawMessage) error

// WebSocketManager 传输适配器
// 负责连接升级、读写泵和入站事件到处理函数的显式分发表
type WebSocketManager struct {
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	router   *service.Router
	logger   clog.Logger
	handlers map[protocol.EventType]eventHandler
}

// NewWebSocketManager 创建传输适配器
func NewWebSocketManager(cfg config.WebSocketConfig, router *service.Router) *WebSocketManager {
	wm := &WebSocketManager{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源
			},
		},
		router: router,
		logger: clog.Module("websocket"),
	}

	// 事件类型 -> 处理函数的分发表
	wm.handlers = map[protocol.EventType]eventHandler{
		protocol.EventConnect:            wm.handleConnect,
		protocol.EventSendMessage:        wm.sendHandler(model.MessageTypeText),
		protocol.EventSendImage:          wm.sendHandler(model.MessageTypeImage),
		protocol.EventSendVoice:          wm.sendHandler(model.MessageTypeVoice),
		protocol.EventSendFile:           wm.sendHandler(model.MessageTypeFile),
		protocol.EventReplyMessage:       wm.sendHandler(model.MessageTypeText),
		protocol.EventTyping:             wm.handleTyping,
		protocol.EventMarkRead:           wm.handleMarkRead,
		protocol.EventDeleteMessage:      wm.handleDeleteMessage,
		protocol.EventClearChat:          wm.handleClearChat,
		protocol.EventForwardMessage:     wm.handleForwardMessage,
		protocol.EventSelectConversation: wm.handleSelectConversation,
		protocol.EventPing:               wm.handlePing,
	}
	return wm
}

// HandleWebSocket 处理 WebSocket 升级请求
func (wm *WebSocketManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := wm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wm.logger.Error("WebSocket 升级失败", clog.Err(err))
		return
	}

	conn := &Connection{
		conn:   ws,
		send:   make(chan []byte, wm.cfg.SendQueueSize),
		closed: make(chan struct{}),
	}

	go wm.writePump(conn)
	go wm.readPump(conn)
}

// readPump 读取并分发入站事件
// 退出前先完成断开清理（路由引擎内部保证清理先于下线广播）
func (wm *WebSocketManager) readPump(conn *Connection) {
	defer func() {
		wm.router.Disconnect(context.Background(), conn)
		conn.Close()
		_ = conn.conn.Close()
	}()

	conn.conn.SetReadLimit(wm.cfg.MaxMessageSize)
	_ = conn.conn.SetReadDeadline(time.Now().Add(wm.cfg.PongTimeout))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(wm.cfg.PongTimeout))
	})

	for {
		_, message, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wm.logger.Warn("WebSocket 读取错误", clog.Err(err))
			}
			return
		}

		var ev protocol.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			wm.logger.Warn("解析入站事件失败", clog.Err(err))
			continue
		}

		handler, ok := wm.handlers[ev.Type]
		if !ok {
			wm.logger.Warn("未知的事件类型", clog.String("type", string(ev.Type)))
			continue
		}
		metrics.EventsDispatched.WithLabelValues(string(ev.Type)).Inc()

		if err := handler(context.Background(), conn, ev.Data); err != nil {
			wm.logger.Error("处理事件失败",
				clog.String("type", string(ev.Type)),
				clog.Err(err))
		}
	}
}

// writePump 消费发送队列并维持心跳
func (wm *WebSocketManager) writePump(conn *Connection) {
	ticker := time.NewTicker(wm.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.conn.Close()
	}()

	for {
		select {
		case data := <-conn.send:
			_ = conn.conn.SetWriteDeadline(time.Now().Add(wm.cfg.WriteTimeout))
			if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				wm.logger.Warn("WebSocket 写入失败", clog.Err(err))
				return
			}

		case <-ticker.C:
			_ = conn.conn.SetWriteDeadline(time.Now().Add(wm.cfg.WriteTimeout))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-conn.closed:
			_ = conn.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"))
			return
		}
	}
}

// handleConnect 处理 connect 握手
func (wm *WebSocketManager) handleConnect(ctx context.Context, conn *Connection, data json.RawMessage) error {
	if conn.session != nil {
		// 已完成握手的连接忽略重复 connect
		return nil
	}
	var in protocol.ConnectData
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	session, err := wm.router.Connect(ctx, in.UserName, conn)
	if err != nil {
		return err
	}
	conn.session = session
	return nil
}

// sendHandler 构造不同内容类型的发送事件处理函数
func (wm *WebSocketManager) sendHandler(msgType int) eventHandler {
	return func(ctx context.Context, conn *Connection, data json.RawMessage) error {
		if conn.session == nil {
			return nil
		}
		var in protocol.SendMessageData
		if err := json.Unmarshal(data, &in); err != nil {
			return err
		}
		return wm.router.SendMessage(ctx, conn.session, &in, msgType)
	}
}

func (wm *WebSocketManager) handleTyping(ctx context.Context, conn *Connection, data json.RawMessage) error {
	if conn.session == nil {
		return nil
	}
	var in protocol.TypingData
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	wm.router.HandleTyping(ctx, conn.session, &in)
	return nil
}

func (wm *WebSocketManager) handleMarkRead(ctx context.Context, conn *Connection, data json.RawMessage) error {
	if conn.session == nil {
		return nil
	}
	var in protocol.MarkReadData
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	counterpartID := in.CounterpartID
	if counterpartID == "" && in.MessageID != "" {
		resolved, ok := wm.router.ResolveReadCounterpart(ctx, in.MessageID)
		if !ok {
			return nil
		}
		counterpartID = resolved
	}
	if counterpartID == "" {
		return nil
	}
	return wm.router.MarkRead(ctx, conn.session.UserID, counterpartID)
}

func (wm *WebSocketManager) handleDeleteMessage(ctx context.Context, conn *Connection, data json.RawMessage) error {
	if conn.session == nil {
		return nil
	}
	var in protocol.DeleteMessageData
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	return wm.router.DeleteMessage(ctx, conn.session, in.MessageID)
}

func (wm *WebSocketManager) handleClearChat(ctx context.Context, conn *Connection, data json.RawMessage) error {
	if conn.session == nil {
		return nil
	}
	var in protocol.ClearChatData
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	return wm.router.ClearChat(ctx, conn.session, in.CounterpartID, in.IsGroup)
}

func (wm *WebSocketManager) handleForwardMessage(ctx context.Context, conn *Connection, data json.RawMessage) error {
	if conn.session == nil {
		return nil
	}
	var in protocol.ForwardMessageData
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	return wm.router.ForwardMessage(ctx, conn.session, &in)
}

func (wm *WebSocketManager) handleSelectConversation(ctx context.Context, conn *Connection, data json.RawMessage) error {
	if conn.session == nil {
		return nil
	}
	var in protocol.SelectConversationData
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	return wm.router.SelectConversation(ctx, conn.session, in.TargetID, in.IsGroup)
}

func (wm *WebSocketManager) handlePing(_ context.Context, conn *Connection, _ json.RawMessage) error {
	ev, err := protocol.NewEvent(protocol.EventPong, nil)
	if err != nil {
		return err
	}
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	return conn.Push(data)
}
