package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"go.uber.org/zap"

	"github.com/langchou/ocpphub/internal/bridge"
	"github.com/langchou/ocpphub/internal/models"
	"github.com/langchou/ocpphub/internal/ocpp"
	"github.com/langchou/ocpphub/internal/session"
	"github.com/langchou/ocpphub/pkg/ws"
)

// handleCall 按 Action 分发一条 CALL，返回 CALLRESULT 载荷
// 未识别的 Action 一律回空对象，绝不回 CALLERROR
func (s *ChargePointService) handleCall(stationID string, frame *ocpp.Frame) interface{} {
	switch frame.Action {
	case core.BootNotificationFeatureName:
		return s.onBootNotification(stationID, frame.Payload)
	case core.HeartbeatFeatureName:
		return s.onHeartbeat(stationID)
	case core.StatusNotificationFeatureName:
		return s.onStatusNotification(stationID, frame.Payload)
	case core.StartTransactionFeatureName:
		return s.onStartTransaction(stationID, frame.Payload)
	case core.StopTransactionFeatureName:
		return s.onStopTransaction(stationID, frame.Payload)
	case core.MeterValuesFeatureName:
		return s.onMeterValues(stationID, frame.Payload)
	default:
		s.logger.Info("Unhandled action, replying empty result",
			zap.String("station_id", stationID),
			zap.String("action", frame.Action))
		return struct{}{}
	}
}

// onBootNotification 设备身份上报
func (s *ChargePointService) onBootNotification(stationID string, payload json.RawMessage) interface{} {
	now := time.Now()

	var req core.BootNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Warn("Bad BootNotification payload",
			zap.String("station_id", stationID), zap.Error(err))
	}

	s.registry.UpdateBoot(stationID, req.ChargePointVendor, req.ChargePointModel, req.FirmwareVersion, now)

	s.logger.Info("Boot notification",
		zap.String("station_id", stationID),
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel),
		zap.String("firmware", req.FirmwareVersion))
	s.activity.Addf("%s booted: %s %s (fw %s)",
		stationID, req.ChargePointVendor, req.ChargePointModel, req.FirmwareVersion)

	if station, ok := s.registry.Lookup(stationID); ok {
		s.bridge.Notify(bridge.ActionRegisterStation, stationData(station))
	}
	s.broadcastStation(stationID)

	return &core.BootNotificationConfirmation{
		CurrentTime: types.NewDateTime(now),
		Interval:    s.cfg.BootInterval,
		Status:      core.RegistrationStatusAccepted,
	}
}

// onHeartbeat 心跳
func (s *ChargePointService) onHeartbeat(stationID string) interface{} {
	now := time.Now()
	s.registry.Touch(stationID, now)

	s.bridge.Notify(bridge.ActionUpdateStation, map[string]interface{}{
		"station_id":     stationID,
		"last_heartbeat": now,
	})

	return &core.HeartbeatConfirmation{CurrentTime: types.NewDateTime(now)}
}

// onStatusNotification 枪头状态上报
// 桩自身是状态的权威来源，本地只做桥接侧映射，不另存状态
func (s *ChargePointService) onStatusNotification(stationID string, payload json.RawMessage) interface{} {
	var req core.StatusNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Warn("Bad StatusNotification payload",
			zap.String("station_id", stationID), zap.Error(err))
		return &core.StatusNotificationConfirmation{}
	}

	mapped := models.MapConnectorState(string(req.Status))
	s.logger.Info("Status notification",
		zap.String("station_id", stationID),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("status", string(req.Status)),
		zap.String("mapped", mapped))
	s.activity.Addf("%s#%d status: %s", stationID, req.ConnectorId, req.Status)

	s.bridge.Notify(bridge.ActionUpdateStation, map[string]interface{}{
		"station_id":   stationID,
		"connector_id": req.ConnectorId,
		"state":        mapped,
	})

	return &core.StatusNotificationConfirmation{}
}

// onStartTransaction 开始充电会话
// idTag 不做校验，一律 Accepted
func (s *ChargePointService) onStartTransaction(stationID string, payload json.RawMessage) interface{} {
	now := time.Now()

	var req core.StartTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Warn("Bad StartTransaction payload",
			zap.String("station_id", stationID), zap.Error(err))
	}

	// 同枪头残留的活跃会话先行结清，保证一枪一会话
	if stale, ok := s.store.FindByConnector(stationID, req.ConnectorId); ok {
		s.logger.Warn("Connector already has an active session, finalizing it",
			zap.String("station_id", stationID),
			zap.Int("connector_id", req.ConnectorId),
			zap.String("transaction_id", stale.TransactionID))
		s.finalize(stale.TransactionID, models.ReasonStop, now, -1)
	}

	wireID, txID := s.newTransactionID(now)
	sess := s.store.Open(txID, stationID, req.ConnectorId, now)

	s.logger.Info("Transaction started",
		zap.String("station_id", stationID),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("transaction_id", txID),
		zap.String("id_tag", req.IdTag))
	s.activity.Addf("session %s started on %s#%d", txID, stationID, req.ConnectorId)

	s.bridge.Notify(bridge.ActionCreateSession, sess)
	s.broadcast(ws.MsgTypeSessionUpdate, sess)

	return &core.StartTransactionConfirmation{
		IdTagInfo:     types.NewIdTagInfo(types.AuthorizationStatusAccepted),
		TransactionId: wireID,
	}
}

// onStopTransaction 结束充电会话
// 未知事务照样 Accepted：大概率已被巡检或断连路径结清，设备无法避免这种竞争
func (s *ChargePointService) onStopTransaction(stationID string, payload json.RawMessage) interface{} {
	now := time.Now()

	var req core.StopTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Warn("Bad StopTransaction payload",
			zap.String("station_id", stationID), zap.Error(err))
		return &core.StopTransactionConfirmation{
			IdTagInfo: types.NewIdTagInfo(types.AuthorizationStatusAccepted),
		}
	}

	txID := strconv.Itoa(req.TransactionId)
	finalEnergy := float64(req.MeterStop) / 1000 // meterStop 按 Wh 处理

	if !s.finalize(txID, models.ReasonStop, now, finalEnergy) {
		s.logger.Info("StopTransaction for unknown or already finalized transaction",
			zap.String("station_id", stationID),
			zap.String("transaction_id", txID))
	}

	return &core.StopTransactionConfirmation{
		IdTagInfo: types.NewIdTagInfo(types.AuthorizationStatusAccepted),
	}
}

// onMeterValues 计量采样
// 无对应会话且采样非空时自动补建（服务重启前已在充电的桩没有机会重新宣告）
func (s *ChargePointService) onMeterValues(stationID string, payload json.RawMessage) interface{} {
	now := time.Now()

	var req core.MeterValuesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Warn("Bad MeterValues payload",
			zap.String("station_id", stationID), zap.Error(err))
		return struct{}{}
	}

	// 在充电的桩必然在线
	s.registry.Touch(stationID, now)

	txID, ok := s.resolveSession(stationID, req)
	if !ok {
		if len(req.MeterValue) == 0 {
			return struct{}{}
		}
		_, ms := s.newTransactionID(now)
		txID = fmt.Sprintf("auto-%s", ms)
		s.store.Open(txID, stationID, req.ConnectorId, now)
		s.logger.Warn("Meter values without a known session, auto-recovered",
			zap.String("station_id", stationID),
			zap.Int("connector_id", req.ConnectorId),
			zap.String("transaction_id", txID))
		s.activity.Addf("session %s auto-recovered on %s#%d", txID, stationID, req.ConnectorId)
	}

	reading := ocpp.ParseMeterValues(req.MeterValue)
	if err := s.store.UpdateMeter(txID, meterUpdate(reading), now); err != nil {
		// 会话刚被并发结清，采样丢弃
		return struct{}{}
	}

	s.bridge.SendTelemetry(bridge.Telemetry{
		StationID:   stationID,
		ConnectorID: req.ConnectorId,
		Energy:      reading.EnergyKWh,
		Power:       reading.PowerW,
	})
	if sess, ok := s.store.FindByTx(txID); ok {
		s.broadcast(ws.MsgTypeSessionUpdate, sess)
	}

	return struct{}{}
}

// resolveSession 先按事务 ID、再按（桩, 枪头）定位活跃会话
func (s *ChargePointService) resolveSession(stationID string, req core.MeterValuesRequest) (string, bool) {
	if req.TransactionId != nil {
		txID := strconv.Itoa(*req.TransactionId)
		if _, ok := s.store.FindByTx(txID); ok {
			return txID, true
		}
	}
	if sess, ok := s.store.FindByConnector(stationID, req.ConnectorId); ok {
		return sess.TransactionID, true
	}
	return "", false
}

func meterUpdate(r ocpp.Reading) session.MeterUpdate {
	return session.MeterUpdate{
		PowerW:    r.PowerW,
		EnergyKWh: r.EnergyKWh,
		VoltageV:  r.VoltageV,
		CurrentA:  r.CurrentA,
		TempC:     r.TempC,
	}
}
