package session

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/langchou/ocpphub/internal/models"
)

// 会话生命周期状态
const (
	StateCharging  = "charging"
	StateCompleted = "completed"
)

// machine 单个会话的生命周期状态机
// 四条结束路径共用同一迁移，第一个触发者成功，其余拿到错误
// 即"已结束"的观察本身
type machine struct {
	fsm *fsm.FSM
}

// newMachine 创建会话状态机，初始为 charging
func newMachine() *machine {
	return &machine{
		fsm: fsm.NewFSM(
			StateCharging,
			fsm.Events{
				{Name: models.ReasonStop, Src: []string{StateCharging}, Dst: StateCompleted},
				{Name: models.ReasonDisconnect, Src: []string{StateCharging}, Dst: StateCompleted},
				{Name: models.ReasonHeartbeatTimeout, Src: []string{StateCharging}, Dst: StateCompleted},
				{Name: models.ReasonGhostZeroPower, Src: []string{StateCharging}, Dst: StateCompleted},
			},
			fsm.Callbacks{},
		),
	}
}

// complete 尝试以给定原因结束会话
// 并发结束方中恰有一个成功；外层 Store 锁保证与映射表更新原子
func (m *machine) complete(reason string) error {
	if err := m.fsm.Event(context.Background(), reason); err != nil {
		return fmt.Errorf("complete session (%s): %w", reason, err)
	}
	return nil
}

// current 当前状态
func (m *machine) current() string {
	return m.fsm.Current()
}
