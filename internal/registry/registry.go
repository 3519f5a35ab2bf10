package registry

import (
	"sync"
	"time"

	"github.com/langchou/ocpphub/internal/models"
)

// Registry 充电桩注册表
// 所有读写都在锁内完成，单个操作对外原子
type Registry struct {
	mu       sync.RWMutex
	stations map[string]*models.Station
}

// New 创建注册表
func New() *Registry {
	return &Registry{
		stations: make(map[string]*models.Station),
	}
}

// Register 登记新连接，返回被替换的旧记录（如有）
// 旧连接的关闭与会话清理由调用方完成
func (r *Registry) Register(stationID string, conn models.Sender, now time.Time) *models.Station {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.stations[stationID]

	station := &models.Station{
		StationID:       stationID,
		Status:          models.StationOnline,
		Vendor:          "Unknown",
		Model:           "Unknown",
		FirmwareVersion: "Unknown",
		ConnectedAt:     now,
		LastHeartbeat:   now,
		Conn:            conn,
	}
	if prev != nil {
		// 重连沿用已上报的设备身份
		station.Vendor = prev.Vendor
		station.Model = prev.Model
		station.FirmwareVersion = prev.FirmwareVersion
	}
	r.stations[stationID] = station

	return prev
}

// UpdateBoot 写入 BootNotification 上报的设备身份
func (r *Registry) UpdateBoot(stationID, vendor, model, firmware string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	station, ok := r.stations[stationID]
	if !ok {
		return
	}
	if vendor != "" {
		station.Vendor = vendor
	}
	if model != "" {
		station.Model = model
	}
	if firmware != "" {
		station.FirmwareVersion = firmware
	}
	station.Status = models.StationOnline
	station.LastHeartbeat = now
}

// Touch 刷新心跳时间并置为在线
func (r *Registry) Touch(stationID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	station, ok := r.stations[stationID]
	if !ok {
		return
	}
	station.Status = models.StationOnline
	station.LastHeartbeat = now
}

// MarkOffline 置为离线，记录保留
// 连接句柄不清空：桩恢复流量后 Touch 重新上线，句柄仍可用；
// 可写性由 Conn 的状态检查兜底
func (r *Registry) MarkOffline(stationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if station, ok := r.stations[stationID]; ok {
		station.Status = models.StationOffline
	}
}

// Detach 连接关闭时的条件下线
// 仅当注册表仍指向该连接时生效，重连替换后的旧循环在这里拿到 false
func (r *Registry) Detach(stationID string, conn models.Sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	station, ok := r.stations[stationID]
	if !ok || station.Conn != conn {
		return false
	}
	station.Status = models.StationOffline
	station.Conn = nil
	return true
}

// Lookup 读取单桩快照
func (r *Registry) Lookup(stationID string) (models.Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	station, ok := r.stations[stationID]
	if !ok {
		return models.Station{}, false
	}
	return *station, true
}

// Conn 取在线桩的发送端
func (r *Registry) Conn(stationID string) (models.Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	station, ok := r.stations[stationID]
	if !ok || station.Status != models.StationOnline || station.Conn == nil {
		return nil, false
	}
	return station.Conn, true
}

// Snapshot 全量只读快照
func (r *Registry) Snapshot() []models.Station {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Station, 0, len(r.stations))
	for _, station := range r.stations {
		out = append(out, *station)
	}
	return out
}

// Counts 返回桩总数与在线数
func (r *Registry) Counts() (total, online int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total = len(r.stations)
	for _, station := range r.stations {
		if station.Status == models.StationOnline {
			online++
		}
	}
	return total, online
}
