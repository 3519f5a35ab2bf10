package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/ocpphub/internal/activity"
	"github.com/langchou/ocpphub/internal/registry"
	"github.com/langchou/ocpphub/internal/service"
	"github.com/langchou/ocpphub/internal/session"
	"github.com/langchou/ocpphub/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger      *zap.Logger
	registry    *registry.Registry
	store       *session.Store
	activityLog *activity.Log
	cpService   *service.ChargePointService
	wsHub       *ws.Hub
	upgrader    websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	reg *registry.Registry,
	store *session.Store,
	activityLog *activity.Log,
	cpService *service.ChargePointService,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:      logger,
		registry:    reg,
		store:       store,
		activityLog: activityLog,
		cpService:   cpService,
		wsHub:       wsHub,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"ocpp1.6"},
			CheckOrigin: func(r *http.Request) bool {
				return true // 桩侧不做来源校验
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// 桩接入
	r.GET("/ocpp16/:station", h.HandleOCPP)

	// 只读 API
	api := r.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.GET("/devices", h.ListDevices)
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:station", h.ListSessions)
		api.GET("/activity", h.GetActivity)
	}

	// 运维指令
	r.POST("/command", h.PostCommand)

	// 历史与导出
	r.GET("/logs", h.GetLogs)
	r.GET("/port/:n", h.GetPortHistory)

	// 概览与看板推送
	r.GET("/", h.GetOverview)
	r.GET("/ws", h.HandleDashboardWS)
}

// HandleOCPP 桩连接入口：校验路径后升级为 WebSocket 并移交服务层
func (h *Handler) HandleOCPP(c *gin.Context) {
	stationID := c.Param("station")
	if stationID == "" || stationID == "ocpp16" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid station id"})
		return
	}

	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "WebSocket upgrade required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade station websocket",
			zap.String("station_id", stationID),
			zap.Error(err))
		return
	}

	// 阻塞到连接结束
	h.cpService.HandleStation(stationID, conn)
}

// GetStatus 汇总状态
func (h *Handler) GetStatus(c *gin.Context) {
	total, online := h.registry.Counts()
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"devices":        total,
		"sessions":       h.store.ActiveCount(),
		"devices_online": online,
	})
}

// ListDevices 桩列表（不含连接句柄）
func (h *Handler) ListDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"devices": h.registry.Snapshot(),
	})
}

// ListSessions 活跃会话，路径带桩 ID 时过滤
func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sessions": h.store.ActiveSnapshot(c.Param("station")),
	})
}

// GetActivity 活动日志
func (h *Handler) GetActivity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"activity": h.activityLog.Snapshot(),
	})
}

// CommandRequest 运维指令请求体
type CommandRequest struct {
	StationID string      `json:"station_id"`
	Action    string      `json:"action"`
	Payload   interface{} `json:"payload"`
}

// PostCommand 向在线桩下发 OCPP CALL
func (h *Handler) PostCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}
	if req.StationID == "" || req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "station_id and action are required"})
		return
	}

	messageID, err := h.cpService.SendCommand(req.StationID, req.Action, req.Payload)
	if err != nil {
		if errors.Is(err, service.ErrStationNotConnected) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Station not connected"})
			return
		}
		h.logger.Error("Failed to send command",
			zap.String("station_id", req.StationID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to send command"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "messageId": messageID})
}

// GetOverview 服务概览（看板前端独立部署，这里只给数据）
func (h *Handler) GetOverview(c *gin.Context) {
	total, online := h.registry.Counts()
	c.JSON(http.StatusOK, gin.H{
		"service":            "ocpphub",
		"devices":            total,
		"devices_online":     online,
		"active_sessions":    h.store.ActiveCount(),
		"completed_sessions": len(h.store.Completed()),
		"ws_clients":         h.wsHub.ClientCount(),
	})
}

// HandleDashboardWS 看板实时推送
func (h *Handler) HandleDashboardWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade dashboard websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}
