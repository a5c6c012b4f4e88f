package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ceyewan/minichat/internal/clog"
	"github.com/ceyewan/minichat/internal/config"
	"github.com/ceyewan/minichat/internal/repository"
	"github.com/ceyewan/minichat/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServer HTTP 服务器
// 承载 WebSocket 升级端点、健康检查、指标和群组管理 REST 接口
type HTTPServer struct {
	cfg    *config.Config
	engine *gin.Engine
	server *http.Server
	logger clog.Logger

	db     *repository.Database
	users  *repository.UserRepository
	groups *repository.GroupRepository
	router *service.Router
	ws     *WebSocketManager
}

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(
	cfg *config.Config,
	db *repository.Database,
	users *repository.UserRepository,
	groups *repository.GroupRepository,
	router *service.Router,
	ws *WebSocketManager,
) *HTTPServer {
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	h := &HTTPServer{
		cfg:    cfg,
		engine: engine,
		logger: clog.Module("http-server"),
		db:     db,
		users:  users,
		groups: groups,
		router: router,
		ws:     ws,
	}
	h.registerRoutes()
	return h
}

// Engine 返回 gin 引擎实例
func (h *HTTPServer) Engine() *gin.Engine {
	return h.engine
}

// registerRoutes 注册路由
func (h *HTTPServer) registerRoutes() {
	// WebSocket 入口
	h.engine.GET(h.cfg.Server.WSPath, func(c *gin.Context) {
		h.ws.HandleWebSocket(c.Writer, c.Request)
	})

	// 健康检查与指标
	h.engine.GET("/healthz", h.healthCheck)
	h.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 路由组
	v1 := h.engine.Group("/api/v1")
	{
		users := v1.Group("/users")
		{
			users.GET("", h.listUsers)
			users.GET("/:id/groups", h.listUserGroups)
			users.GET("/:id/unread/:counterpart", h.getUnreadCount)
		}

		groups := v1.Group("/groups")
		{
			groups.POST("", h.createGroup)
			groups.GET("/:id", h.getGroup)
			groups.PUT("/:id", h.updateGroup)
			groups.DELETE("/:id", h.deleteGroup)
			groups.GET("/:id/members", h.listGroupMembers)
			groups.POST("/:id/members", h.addGroupMember)
			groups.DELETE("/:id/members/:userId", h.removeGroupMember)
		}
	}
}

// Start 启动 HTTP 服务器，阻塞直到服务器退出
func (h *HTTPServer) Start() error {
	h.server = &http.Server{
		Addr:    h.cfg.Server.HTTPAddr,
		Handler: h.engine,
	}
	h.logger.Info("HTTP 服务器启动", clog.String("addr", h.cfg.Server.HTTPAddr))

	err := h.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 优雅关闭
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheck 健康检查：数据库连通即视为健康
func (h *HTTPServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"online": h.router.Registry().Count(),
	})
}

// listUsers 返回全部用户，并按在线状态标注
func (h *HTTPServer) listUsers(c *gin.Context) {
	users, err := h.users.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}

	type userView struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		AvatarURL string    `json:"avatar_url,omitempty"`
		IsOnline  bool      `json:"is_online"`
		LastSeen  time.Time `json:"last_seen"`
	}
	registry := h.router.Registry()
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{
			ID:        u.ID,
			Name:      u.Name,
			AvatarURL: u.AvatarURL,
			IsOnline:  registry.IsOnline(u.ID),
			LastSeen:  u.LastSeen,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// listUserGroups 返回用户加入的群组
func (h *HTTPServer) listUserGroups(c *gin.Context) {
	groups, err := h.groups.ListUserGroups(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// getUnreadCount 查询未读计数
func (h *HTTPServer) getUnreadCount(c *gin.Context) {
	count, err := h.router.UnreadCount(c.Request.Context(), c.Param("id"), c.Param("counterpart"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get unread count"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

type createGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by" binding:"required"`
}

// createGroup 创建群组，创建者自动成为管理员成员
func (h *HTTPServer) createGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), req.Name, req.Description, req.CreatedBy)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "group name already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create group"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// getGroup 获取群组详情
func (h *HTTPServer) getGroup(c *gin.Context) {
	group, err := h.groups.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get group"})
		return
	}
	if group == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

type updateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
}

// updateGroup 更新群组信息
func (h *HTTPServer) updateGroup(c *gin.Context) {
	var req updateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.groups.UpdateGroup(c.Request.Context(), c.Param("id"), req.Name, req.Description, req.AvatarURL)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "group name already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update group"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// deleteGroup 删除群组，仅创建者可操作
func (h *HTTPServer) deleteGroup(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	deleted, err := h.groups.DeleteGroup(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete group"})
		return
	}
	if !deleted {
		c.JSON(http.StatusForbidden, gin.H{"error": "group not found or not the creator"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// listGroupMembers 返回群组成员
func (h *HTTPServer) listGroupMembers(c *gin.Context) {
	members, err := h.groups.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type addMemberRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	IsAdmin bool   `json:"is_admin"`
}

// addGroupMember 添加群组成员
func (h *HTTPServer) addGroupMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.groups.AddMember(c.Request.Context(), c.Param("id"), req.UserID, req.IsAdmin)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyMember) {
			c.JSON(http.StatusConflict, gin.H{"error": "user is already a member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add member"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"added": true})
}

// removeGroupMember 移除群组成员
func (h *HTTPServer) removeGroupMember(c *gin.Context) {
	err := h.groups.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}
