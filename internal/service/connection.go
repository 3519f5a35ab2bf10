package service

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/ocpphub/internal/bridge"
	"github.com/langchou/ocpphub/internal/models"
	"github.com/langchou/ocpphub/internal/ocpp"
)

// connection 单桩连接
// 写操作串行化，保证 CALLRESULT 按请求到达顺序出站
type connection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newConnection(conn *websocket.Conn) *connection {
	return &connection{conn: conn}
}

// Send 串行写出一帧
func (c *connection) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close 关闭底层连接
func (c *connection) Close() error {
	return c.conn.Close()
}

// HandleStation 接管一条已升级的桩连接，阻塞到连接结束
func (s *ChargePointService) HandleStation(stationID string, wsConn *websocket.Conn) {
	conn := newConnection(wsConn)
	now := time.Now()

	prev := s.registry.Register(stationID, conn, now)
	if prev != nil && prev.Conn != nil {
		// 同 ID 重连：关掉旧连接并结清它的会话，旧循环随后发现
		// 注册表已易主，跳过自身清理
		s.logger.Warn("Station reconnected, replacing previous connection",
			zap.String("station_id", stationID))
		prev.Conn.Close()
		s.finalizeStation(stationID, models.ReasonDisconnect, now)
	}

	s.logger.Info("Station connected", zap.String("station_id", stationID))
	s.activity.Addf("%s connected", stationID)
	s.broadcastStation(stationID)

	defer s.cleanup(stationID, conn)

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := ocpp.DecodeFrame(data)
		if err != nil {
			// 容忍孤立畸形帧，连接不中断
			s.logger.Warn("Malformed frame",
				zap.String("station_id", stationID),
				zap.Error(err))
			continue
		}

		switch frame.Type {
		case ocpp.MessageTypeCall:
			payload := s.handleCall(stationID, frame)
			reply, err := ocpp.MarshalCallResult(frame.MessageID, payload)
			if err != nil {
				s.logger.Error("Failed to marshal call result",
					zap.String("station_id", stationID),
					zap.Error(err))
				continue
			}
			if err := conn.Send(reply); err != nil {
				// 写失败视同断连
				s.logger.Warn("Failed to send call result, dropping connection",
					zap.String("station_id", stationID),
					zap.Error(err))
				return
			}

		case ocpp.MessageTypeCallResult:
			// 对 /command 下发的应答，不跟踪挂起请求
			s.logger.Debug("Call result from station",
				zap.String("station_id", stationID),
				zap.String("message_id", frame.MessageID))

		case ocpp.MessageTypeCallError:
			s.logger.Warn("Call error from station",
				zap.String("station_id", stationID),
				zap.String("message_id", frame.MessageID),
				zap.String("code", frame.ErrorCode))
		}
	}
}

// cleanup 连接结束后的善后
// Detach 仅在注册表仍指向本连接时成功，重连替换场景下这里是空操作
func (s *ChargePointService) cleanup(stationID string, conn *connection) {
	conn.Close()

	if !s.registry.Detach(stationID, conn) {
		return
	}

	now := time.Now()
	n := s.finalizeStation(stationID, models.ReasonDisconnect, now)

	s.logger.Info("Station disconnected",
		zap.String("station_id", stationID),
		zap.Int("finalized_sessions", n))
	s.activity.Addf("%s disconnected", stationID)

	if station, ok := s.registry.Lookup(stationID); ok {
		s.bridge.Notify(bridge.ActionUpdateStation, stationData(station))
	}
	s.broadcastStation(stationID)
}
