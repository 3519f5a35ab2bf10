package session

import (
	"errors"
	"sync"
	"time"

	"github.com/langchou/ocpphub/internal/models"
)

// ErrNotActive 会话不在活跃表中（从未存在或已被其它路径结束）
var ErrNotActive = errors.New("session not active")

// Session 活跃充电会话
// 数值字段只由计量采样更新
type Session struct {
	TransactionID string    `json:"transaction_id"`
	StationID     string    `json:"station_id"`
	ConnectorID   int       `json:"connector_id"`
	StartTime     time.Time `json:"start_time"`
	PowerW        float64   `json:"power"`
	EnergyKWh     float64   `json:"energy"`
	VoltageV      float64   `json:"voltage"`
	CurrentA      float64   `json:"current"`
	TempC         float64   `json:"temperature"`

	// 僵尸会话清理依据：最后一次非零功率观察时间，尚无非零观察时为开启时间
	lastNonZeroPower time.Time

	// 历史记录用的聚合量
	maxPowerW    float64
	voltageSum   float64
	voltageCount int
	currentSum   float64
	currentCount int

	machine *machine
}

// Store 会话存储：活跃表 + 有界的已完成环
type Store struct {
	mu           sync.RWMutex
	active       map[string]*Session
	completed    []models.CompletedSession // 新的在前
	historyLimit int
}

// NewStore 创建会话存储
func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = 1000
	}
	return &Store{
		active:       make(map[string]*Session),
		historyLimit: historyLimit,
	}
}

// Open 开启活跃会话，返回快照
// 内部记录不外借，调用方拿不到跨操作的引用
func (s *Store) Open(txID, stationID string, connectorID int, now time.Time) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		TransactionID:    txID,
		StationID:        stationID,
		ConnectorID:      connectorID,
		StartTime:        now,
		lastNonZeroPower: now,
		machine:          newMachine(),
	}
	s.active[txID] = sess
	return *sess
}

// FindByTx 按事务 ID 查活跃会话快照
func (s *Store) FindByTx(txID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.active[txID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// FindByConnector 按（桩, 枪头）查活跃会话快照
// 不变式保证同一枪头至多一个活跃会话
func (s *Store) FindByConnector(stationID string, connectorID int) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.active {
		if sess.StationID == stationID && sess.ConnectorID == connectorID {
			return *sess, true
		}
	}
	return Session{}, false
}

// UpdateMeter 写入一次计量采样
// 功率非零时刷新僵尸清理的观察时间
func (s *Store) UpdateMeter(txID string, r MeterUpdate, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.active[txID]
	if !ok {
		return ErrNotActive
	}

	sess.PowerW = r.PowerW
	sess.EnergyKWh = r.EnergyKWh
	sess.VoltageV = r.VoltageV
	sess.CurrentA = r.CurrentA
	sess.TempC = r.TempC

	if r.PowerW > 0 {
		sess.lastNonZeroPower = now
	}
	if r.PowerW > sess.maxPowerW {
		sess.maxPowerW = r.PowerW
	}
	if r.VoltageV > 0 {
		sess.voltageSum += r.VoltageV
		sess.voltageCount++
	}
	if r.CurrentA > 0 {
		sess.currentSum += r.CurrentA
		sess.currentCount++
	}
	return nil
}

// MeterUpdate 一次采样的五元组
type MeterUpdate struct {
	PowerW    float64
	EnergyKWh float64
	VoltageV  float64
	CurrentA  float64
	TempC     float64
}

// Finalize 结束会话：移出活跃表，快照进已完成环
// 原子且幂等，四条结束路径中恰有一条成功，其余拿到 ErrNotActive
// finalEnergy 非负时覆盖电量（StopTransaction 的 meterStop 路径）
func (s *Store) Finalize(txID, reason string, end time.Time, finalEnergy float64) (models.CompletedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.active[txID]
	if !ok {
		return models.CompletedSession{}, ErrNotActive
	}
	if err := sess.machine.complete(reason); err != nil {
		return models.CompletedSession{}, ErrNotActive
	}
	delete(s.active, txID)

	energy := sess.EnergyKWh
	if finalEnergy >= 0 {
		energy = finalEnergy
	}

	completed := models.CompletedSession{
		TransactionID: txID,
		StationID:     sess.StationID,
		ConnectorID:   sess.ConnectorID,
		StartTime:     sess.StartTime,
		EndTime:       end,
		DurationMin:   int(end.Sub(sess.StartTime).Minutes()),
		EnergyKWh:     energy,
		MaxPowerW:     sess.maxPowerW,
		AvgVoltageV:   avg(sess.voltageSum, sess.voltageCount),
		AvgCurrentA:   avg(sess.currentSum, sess.currentCount),
		Reason:        reason,
		Status:        "completed",
	}

	s.completed = append([]models.CompletedSession{completed}, s.completed...)
	if len(s.completed) > s.historyLimit {
		s.completed = s.completed[:s.historyLimit]
	}
	return completed, nil
}

// ActiveSnapshot 活跃会话快照，stationID 非空时按桩过滤
func (s *Store) ActiveSnapshot(stationID string) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.active))
	for _, sess := range s.active {
		if stationID != "" && sess.StationID != stationID {
			continue
		}
		out = append(out, *sess)
	}
	return out
}

// ActiveIDsByStation 某桩全部活跃事务 ID（断连/心跳超时清理用）
func (s *Store) ActiveIDsByStation(stationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for txID, sess := range s.active {
		if sess.StationID == stationID {
			ids = append(ids, txID)
		}
	}
	return ids
}

// GhostCandidates 功率归零超过 threshold 的活跃事务 ID
func (s *Store) GhostCandidates(now time.Time, threshold time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for txID, sess := range s.active {
		if sess.PowerW == 0 && now.Sub(sess.lastNonZeroPower) > threshold {
			ids = append(ids, txID)
		}
	}
	return ids
}

// Completed 已完成会话快照（新的在前）
func (s *Store) Completed() []models.CompletedSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CompletedSession, len(s.completed))
	copy(out, s.completed)
	return out
}

// ActiveCount 活跃会话数
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

func avg(sum float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
