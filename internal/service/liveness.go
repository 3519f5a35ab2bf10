package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/ocpphub/internal/bridge"
	"github.com/langchou/ocpphub/internal/models"
)

// StartSweeps 启动两条独立的存活巡检循环，进程内只调用一次
// 心跳巡检抓没有干净断开的桩，僵尸巡检抓停了充电却不发 StopTransaction 的会话
func (s *ChargePointService) StartSweeps(ctx context.Context) {
	go s.sweepLoop(ctx, s.cfg.HeartbeatSweepInterval, s.sweepHeartbeats)
	go s.sweepLoop(ctx, s.cfg.GhostSweepInterval, s.sweepGhosts)
}

// StopSweeps 停止巡检
func (s *ChargePointService) StopSweeps() {
	close(s.stopCh)
}

func (s *ChargePointService) sweepLoop(ctx context.Context, interval time.Duration, sweep func(now time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			sweep(time.Now())
		}
	}
}

// sweepHeartbeats 心跳超时巡检
// 超时的在线桩置为离线，其活跃会话按 heartbeat_timeout 结清
func (s *ChargePointService) sweepHeartbeats(now time.Time) {
	for _, station := range s.registry.Snapshot() {
		if station.Status != models.StationOnline {
			continue
		}
		if now.Sub(station.LastHeartbeat) <= s.cfg.HeartbeatTimeout {
			continue
		}

		s.registry.MarkOffline(station.StationID)
		n := s.finalizeStation(station.StationID, models.ReasonHeartbeatTimeout, now)

		s.logger.Warn("Station heartbeat timeout",
			zap.String("station_id", station.StationID),
			zap.Duration("silence", now.Sub(station.LastHeartbeat)),
			zap.Int("finalized_sessions", n))
		s.activity.Addf("%s heartbeat timeout, marked offline", station.StationID)

		if updated, ok := s.registry.Lookup(station.StationID); ok {
			s.bridge.Notify(bridge.ActionUpdateStation, stationData(updated))
		}
		s.broadcastStation(station.StationID)
	}
}

// sweepGhosts 僵尸功率巡检
// 功率持续为零超过阈值的会话按 ghost_zero_power 结清
func (s *ChargePointService) sweepGhosts(now time.Time) {
	for _, txID := range s.store.GhostCandidates(now, s.cfg.ZeroPowerTimeout) {
		if s.finalize(txID, models.ReasonGhostZeroPower, now, -1) {
			s.logger.Warn("Ghost session with zero power finalized",
				zap.String("transaction_id", txID))
		}
	}
}
