package service

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/ocpphub/internal/activity"
	"github.com/langchou/ocpphub/internal/bridge"
	"github.com/langchou/ocpphub/internal/config"
	"github.com/langchou/ocpphub/internal/models"
	"github.com/langchou/ocpphub/internal/registry"
	"github.com/langchou/ocpphub/internal/session"
	"github.com/langchou/ocpphub/pkg/ws"
)

// ChargePointService 充电桩接入服务
// 持有注册表与会话存储的共享引用，所有变更都走它们的原子操作
type ChargePointService struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
	store    *session.Store
	bridge   *bridge.Client
	activity *activity.Log
	wsHub    *ws.Hub

	stopCh chan struct{}

	// 事务 ID 的单调保护：同一毫秒内的并发开启不重号
	txMu     sync.Mutex
	lastTxMs int64
}

// New 创建服务
func New(
	cfg *config.Config,
	logger *zap.Logger,
	reg *registry.Registry,
	store *session.Store,
	bridgeClient *bridge.Client,
	activityLog *activity.Log,
	wsHub *ws.Hub,
) *ChargePointService {
	return &ChargePointService{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		store:    store,
		bridge:   bridgeClient,
		activity: activityLog,
		wsHub:    wsHub,
		stopCh:   make(chan struct{}),
	}
}

// finalize 结束一个会话并分发结果
// 存储层保证幂等：已结束的会话在这里拿到 false
func (s *ChargePointService) finalize(txID, reason string, end time.Time, finalEnergy float64) bool {
	completed, err := s.store.Finalize(txID, reason, end, finalEnergy)
	if err != nil {
		return false
	}

	s.logger.Info("Session finalized",
		zap.String("transaction_id", txID),
		zap.String("station_id", completed.StationID),
		zap.Int("connector_id", completed.ConnectorID),
		zap.String("reason", reason),
		zap.Float64("energy_kwh", completed.EnergyKWh))
	s.activity.Addf("session %s on %s#%d completed (%s): %.2f kWh",
		txID, completed.StationID, completed.ConnectorID, reason, completed.EnergyKWh)

	s.bridge.Notify(bridge.ActionUpdateSession, completed)
	s.broadcast(ws.MsgTypeSessionCompleted, completed)
	return true
}

// finalizeStation 结束某桩全部活跃会话
func (s *ChargePointService) finalizeStation(stationID, reason string, end time.Time) int {
	n := 0
	for _, txID := range s.store.ActiveIDsByStation(stationID) {
		if s.finalize(txID, reason, end, -1) {
			n++
		}
	}
	return n
}

// broadcast 推送看板消息，Hub 未接入时跳过
func (s *ChargePointService) broadcast(msgType string, data interface{}) {
	if s.wsHub != nil {
		s.wsHub.BroadcastMessage(msgType, data)
	}
}

// broadcastStation 推送单桩最新快照
func (s *ChargePointService) broadcastStation(stationID string) {
	if station, ok := s.registry.Lookup(stationID); ok {
		s.broadcast(ws.MsgTypeStationUpdate, station)
	}
}

// newTransactionID 生成毫秒时间戳事务 ID，进程生命周期内唯一
func (s *ChargePointService) newTransactionID(now time.Time) (wire int, key string) {
	s.txMu.Lock()
	ms := now.UnixMilli()
	if ms <= s.lastTxMs {
		ms = s.lastTxMs + 1
	}
	s.lastTxMs = ms
	s.txMu.Unlock()

	wire = int(ms)
	key = strconv.Itoa(wire)
	return wire, key
}

// stationData 桥接上报用的桩数据
func stationData(station models.Station) map[string]interface{} {
	return map[string]interface{}{
		"station_id":       station.StationID,
		"status":           station.Status,
		"vendor":           station.Vendor,
		"model":            station.Model,
		"firmware_version": station.FirmwareVersion,
	}
}
