package bridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// 生命周期事件动作
const (
	ActionRegisterStation = "registerStation"
	ActionUpdateStation   = "updateStation"
	ActionCreateSession   = "createSession"
	ActionUpdateSession   = "updateSession"
)

// Envelope 生命周期事件信封
type Envelope struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}

// Telemetry MeterValues 的精简遥测帧
type Telemetry struct {
	StationID   string  `json:"station_id"`
	ConnectorID int     `json:"connector_id"`
	Energy      float64 `json:"energy"`
	Power       float64 `json:"power"`
}

// Client 外部桥接服务客户端
// 所有调用尽力而为：失败只记日志，本地状态不受影响
type Client struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
}

// New 创建桥接客户端，url 为空表示禁用
func New(url, secret string, logger *zap.Logger) *Client {
	return &Client{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Enabled 是否配置了桥接地址
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Notify 异步上报生命周期事件
func (c *Client) Notify(action string, data interface{}) {
	if !c.Enabled() {
		return
	}
	go c.post(Envelope{Action: action, Data: data})
}

// SendTelemetry 异步上报遥测帧
func (c *Client) SendTelemetry(t Telemetry) {
	if !c.Enabled() {
		return
	}
	go c.post(t)
}

// post 同步提交一个 JSON 载荷
func (c *Client) post(payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("Failed to marshal bridge payload", zap.Error(err))
		return
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("Failed to build bridge request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("x-bridge-secret", c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Bridge unreachable", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Bridge returned non-2xx", zap.Int("status", resp.StatusCode))
		return
	}

	var reply map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		// 非 JSON 响应同样忽略
		c.logger.Warn("Bridge returned non-json body", zap.Error(err))
	}
}
