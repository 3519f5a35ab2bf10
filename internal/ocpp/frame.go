package ocpp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// OCPP-J 帧类型
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Frame 解码后的 OCPP-J 帧
// Payload 保持原始字节，由上层按 Action 延迟解析
type Frame struct {
	Type      int
	MessageID string
	Action    string          // 仅 CALL
	Payload   json.RawMessage // CALL / CALLRESULT
	ErrorCode string          // 仅 CALLERROR
	ErrorDesc string          // 仅 CALLERROR
}

// DecodeFrame 解码一条 OCPP-J 数组帧
// 畸形帧返回错误，由调用方记录日志后继续读取
func DecodeFrame(data []byte) (*Frame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("frame is not a json array: %w", err)
	}
	if len(elems) < 3 {
		return nil, fmt.Errorf("frame has %d elements, need at least 3", len(elems))
	}

	var msgType int
	if err := json.Unmarshal(elems[0], &msgType); err != nil {
		return nil, fmt.Errorf("message type: %w", err)
	}

	frame := &Frame{Type: msgType}
	if err := json.Unmarshal(elems[1], &frame.MessageID); err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	switch msgType {
	case MessageTypeCall:
		if len(elems) < 4 {
			return nil, fmt.Errorf("call frame has %d elements, need 4", len(elems))
		}
		if err := json.Unmarshal(elems[2], &frame.Action); err != nil {
			return nil, fmt.Errorf("action: %w", err)
		}
		frame.Payload = elems[3]

	case MessageTypeCallResult:
		frame.Payload = elems[2]

	case MessageTypeCallError:
		if err := json.Unmarshal(elems[2], &frame.ErrorCode); err != nil {
			return nil, fmt.Errorf("error code: %w", err)
		}
		if len(elems) > 3 {
			// 描述字段非法时不拒帧
			_ = json.Unmarshal(elems[3], &frame.ErrorDesc)
		}

	default:
		return nil, fmt.Errorf("unknown message type %d", msgType)
	}

	return frame, nil
}

// MarshalCall 编码一条由服务端发起的 CALL 帧
func MarshalCall(messageID, action string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]interface{}{MessageTypeCall, messageID, action, payload})
}

// MarshalCallResult 编码对端 CALL 的应答帧
func MarshalCallResult(messageID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]interface{}{MessageTypeCallResult, messageID, payload})
}

// MarshalCallError 编码 CALLERROR 帧
func MarshalCallError(messageID, code, description string) ([]byte, error) {
	return json.Marshal([]interface{}{MessageTypeCallError, messageID, code, description, struct{}{}})
}

// NewMessageID 生成服务端 CALL 的消息 ID（毫秒时间戳）
// 单连接上的发送是串行的，足以保证唯一
func NewMessageID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
