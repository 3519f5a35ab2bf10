package service

import (
	"errors"

	"go.uber.org/zap"

	"github.com/langchou/ocpphub/internal/ocpp"
)

// ErrStationNotConnected 目标桩不在线或不可写
var ErrStationNotConnected = errors.New("station not connected")

// SendCommand 向在线桩下发一条 CALL，返回消息 ID
// 应答在该桩的接收循环中消化，不做请求跟踪
func (s *ChargePointService) SendCommand(stationID, action string, payload interface{}) (string, error) {
	conn, ok := s.registry.Conn(stationID)
	if !ok {
		return "", ErrStationNotConnected
	}

	messageID := ocpp.NewMessageID()
	frame, err := ocpp.MarshalCall(messageID, action, payload)
	if err != nil {
		return "", err
	}

	if err := conn.Send(frame); err != nil {
		s.logger.Warn("Failed to send command",
			zap.String("station_id", stationID),
			zap.String("action", action),
			zap.Error(err))
		return "", err
	}

	s.logger.Info("Command sent",
		zap.String("station_id", stationID),
		zap.String("action", action),
		zap.String("message_id", messageID))
	s.activity.Addf("command %s sent to %s", action, stationID)

	return messageID, nil
}
