package models

import "time"

// 桩状态
const (
	StationOnline  = "online"
	StationOffline = "offline"
)

// Sender 桩连接的发送端
// 注册表只通过它下发帧，不感知底层 WebSocket
type Sender interface {
	Send(data []byte) error
	Close() error
}

// Station 充电桩记录
// Conn 仅在线时可写，序列化时不导出
type Station struct {
	StationID       string    `json:"station_id"`
	Status          string    `json:"status"`
	Vendor          string    `json:"vendor"`
	Model           string    `json:"model"`
	FirmwareVersion string    `json:"firmware_version"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`

	Conn Sender `json:"-"`
}

// 会话结束原因
const (
	ReasonStop             = "stop"
	ReasonDisconnect       = "disconnect"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonGhostZeroPower   = "ghost_zero_power"
)

// CompletedSession 已完成会话快照（不可变）
type CompletedSession struct {
	TransactionID string    `json:"transaction_id"`
	StationID     string    `json:"station_id"`
	ConnectorID   int       `json:"connector_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	DurationMin   int       `json:"duration_minutes"`
	EnergyKWh     float64   `json:"energy_kwh"`
	MaxPowerW     float64   `json:"max_power_w"`
	AvgVoltageV   float64   `json:"avg_voltage_v"`
	AvgCurrentA   float64   `json:"avg_current_a"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status"`
}

// 桥接侧的枪头状态
const (
	ConnectorStateAvailable = "available"
	ConnectorStateCharging  = "charging"
	ConnectorStateError     = "error"
	ConnectorStateOffline   = "offline"
)

// MapConnectorState 把 OCPP StatusNotification 状态映射为桥接侧状态
func MapConnectorState(ocppStatus string) string {
	switch ocppStatus {
	case "Available":
		return ConnectorStateAvailable
	case "Charging":
		return ConnectorStateCharging
	case "Faulted":
		return ConnectorStateError
	case "Unavailable":
		return ConnectorStateOffline
	default:
		return ConnectorStateOffline
	}
}
