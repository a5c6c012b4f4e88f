package presence

import (
	"sync"
	"time"
)

// Conn 会话底层连接的抽象
// 传输层提供实现，路由引擎只通过该接口投递事件
type Conn interface {
	// Push 向连接写入一条已编码的事件
	Push(data []byte) error
	// Close 关闭连接
	Close()
}

// Session 在线用户的活跃会话
type Session struct {
	// 用户 ID
	UserID string

	// 显示名称
	UserName string

	// 底层连接
	Conn Conn

	// 连接建立时间
	ConnectedAt time.Time

	mu sync.Mutex
	// 当前打开的会话对端：单聊为对方用户 ID，群聊为群组 ID（全局群为空串）
	activeTarget  string
	activeIsGroup bool
	activeSet     bool
}

// SetActive 记录该会话当前打开的会话窗口
func (s *Session) SetActive(target string, isGroup bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTarget = target
	s.activeIsGroup = isGroup
	s.activeSet = true
}

// ClearActive 清除当前打开的会话窗口
func (s *Session) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSet = false
	s.activeTarget = ""
	s.activeIsGroup = false
}

// IsViewing 判断该会话是否正在查看指定会话窗口
func (s *Session) IsViewing(target string, isGroup bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSet && s.activeIsGroup == isGroup && s.activeTarget == target
}

// Registry 在线状态注册表
// 进程内唯一的"谁在线"权威。正向索引（用户 -> 会话）与反向索引
// （连接 -> 用户）在同一个临界区内一起更新，任何操作都不会观察到
// 只更新了一半的索引对。
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]*Session
	byConn map[Conn]string
}

// NewRegistry 创建在线状态注册表
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]*Session),
		byConn: make(map[Conn]string),
	}
}

// Connect 注册用户会话
// 同一用户已有会话时新会话取而代之，返回被替换的旧会话（可能为 nil），
// 由调用方决定如何处置旧连接。
func (r *Registry) Connect(userID, userName string, conn Conn) (*Session, *Session) {
	session := &Session{
		UserID:      userID,
		UserName:    userName,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}

	r.mu.Lock()
	old := r.byUser[userID]
	if old != nil {
		delete(r.byConn, old.Conn)
	}
	r.byUser[userID] = session
	r.byConn[conn] = userID
	r.mu.Unlock()

	return session, old
}

// Disconnect 按连接句柄注销会话
// 句柄未注册或已被同一用户的新连接取代时返回 ok=false，这不是错误。
// 后一种情况保证了迟到的断开清理不会误删重连后的新会话。
func (r *Registry) Disconnect(conn Conn) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[conn]
	if !ok {
		return nil, false
	}

	session := r.byUser[userID]
	if session == nil || session.Conn != conn {
		// 反向索引指向的会话已被新连接取代，只清理反向索引
		delete(r.byConn, conn)
		return nil, false
	}

	delete(r.byUser, userID)
	delete(r.byConn, conn)
	return session, true
}

// IsOnline 判断用户是否在线
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// Find 返回用户的活跃会话
func (r *Registry) Find(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.byUser[userID]
	return session, ok
}

// FindByConnection 按连接句柄反查会话
func (r *Registry) FindByConnection(conn Conn) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.byConn[conn]
	if !ok {
		return nil, false
	}
	session, ok := r.byUser[userID]
	return session, ok
}

// ListOnline 返回全部在线会话的快照
func (r *Registry) ListOnline() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.byUser))
	for _, session := range r.byUser {
		sessions = append(sessions, session)
	}
	return sessions
}

// Count 返回在线用户数量
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
