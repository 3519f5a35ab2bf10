package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/ocpphub/internal/models"
)

func TestOpenAndFind(t *testing.T) {
	s := NewStore(1000)
	now := time.Now()

	s.Open("tx1", "CP01", 3, now)

	sess, ok := s.FindByTx("tx1")
	require.True(t, ok)
	assert.Equal(t, "CP01", sess.StationID)
	assert.Equal(t, 3, sess.ConnectorID)
	assert.Equal(t, now, sess.StartTime)

	sess, ok = s.FindByConnector("CP01", 3)
	require.True(t, ok)
	assert.Equal(t, "tx1", sess.TransactionID)

	_, ok = s.FindByConnector("CP01", 4)
	assert.False(t, ok)
	_, ok = s.FindByTx("tx2")
	assert.False(t, ok)
}

func TestUpdateMeter(t *testing.T) {
	s := NewStore(1000)
	now := time.Now()
	s.Open("tx1", "CP01", 1, now)

	err := s.UpdateMeter("tx1", MeterUpdate{
		PowerW:    1500,
		EnergyKWh: 2.4,
		VoltageV:  230,
		CurrentA:  6.5,
		TempC:     30,
	}, now.Add(time.Second))
	require.NoError(t, err)

	sess, _ := s.FindByTx("tx1")
	assert.Equal(t, 1500.0, sess.PowerW)
	assert.Equal(t, 2.4, sess.EnergyKWh)
	assert.Equal(t, 230.0, sess.VoltageV)
	assert.Equal(t, 6.5, sess.CurrentA)
	assert.Equal(t, 30.0, sess.TempC)

	assert.ErrorIs(t, s.UpdateMeter("missing", MeterUpdate{}, now), ErrNotActive)
}

func TestFinalize(t *testing.T) {
	s := NewStore(1000)
	start := time.Now()
	s.Open("tx1", "CP01", 1, start)
	s.UpdateMeter("tx1", MeterUpdate{PowerW: 1500, EnergyKWh: 2.4, VoltageV: 230, CurrentA: 6.5}, start)

	end := start.Add(150 * time.Second)
	completed, err := s.Finalize("tx1", models.ReasonStop, end, 3.6)
	require.NoError(t, err)

	assert.Equal(t, "tx1", completed.TransactionID)
	assert.Equal(t, 2, completed.DurationMin)
	assert.Equal(t, 3.6, completed.EnergyKWh) // meterStop 覆盖
	assert.Equal(t, 1500.0, completed.MaxPowerW)
	assert.Equal(t, 230.0, completed.AvgVoltageV)
	assert.Equal(t, 6.5, completed.AvgCurrentA)
	assert.Equal(t, "completed", completed.Status)
	assert.Equal(t, models.ReasonStop, completed.Reason)

	assert.Equal(t, 0, s.ActiveCount())
	require.Len(t, s.Completed(), 1)
}

func TestFinalizeKeepsObservedEnergy(t *testing.T) {
	s := NewStore(1000)
	now := time.Now()
	s.Open("tx1", "CP01", 1, now)
	s.UpdateMeter("tx1", MeterUpdate{EnergyKWh: 2.4}, now)

	// finalEnergy 为负表示沿用最后观测值
	completed, err := s.Finalize("tx1", models.ReasonDisconnect, now.Add(time.Minute), -1)
	require.NoError(t, err)
	assert.Equal(t, 2.4, completed.EnergyKWh)
}

func TestFinalizeIdempotent(t *testing.T) {
	s := NewStore(1000)
	now := time.Now()
	s.Open("tx1", "CP01", 1, now)

	_, err := s.Finalize("tx1", models.ReasonStop, now, -1)
	require.NoError(t, err)

	_, err = s.Finalize("tx1", models.ReasonGhostZeroPower, now, -1)
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Len(t, s.Completed(), 1)
}

func TestFinalizeConcurrentRace(t *testing.T) {
	// 并发结束方中恰有一个成功
	for i := 0; i < 50; i++ {
		s := NewStore(1000)
		now := time.Now()
		txID := fmt.Sprintf("tx%d", i)
		s.Open(txID, "CP01", 1, now)

		reasons := []string{
			models.ReasonStop,
			models.ReasonDisconnect,
			models.ReasonHeartbeatTimeout,
			models.ReasonGhostZeroPower,
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for _, reason := range reasons {
			wg.Add(1)
			go func(reason string) {
				defer wg.Done()
				if _, err := s.Finalize(txID, reason, now, -1); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}(reason)
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 0, s.ActiveCount())
		assert.Len(t, s.Completed(), 1)
	}
}

func TestCompletedRingEviction(t *testing.T) {
	s := NewStore(1000)
	now := time.Now()

	for i := 0; i < 1001; i++ {
		txID := fmt.Sprintf("tx%d", i)
		s.Open(txID, "CP01", 1, now)
		_, err := s.Finalize(txID, models.ReasonStop, now, -1)
		require.NoError(t, err)
	}

	completed := s.Completed()
	require.Len(t, completed, 1000)
	// 新的在前，最旧的 tx0 被淘汰
	assert.Equal(t, "tx1000", completed[0].TransactionID)
	assert.Equal(t, "tx1", completed[999].TransactionID)
}

func TestGhostCandidates(t *testing.T) {
	s := NewStore(1000)
	now := time.Now()
	s.Open("tx1", "CP01", 1, now)
	s.Open("tx2", "CP01", 2, now)

	// tx2 有非零功率观察
	s.UpdateMeter("tx2", MeterUpdate{PowerW: 800}, now.Add(20*time.Second))

	candidates := s.GhostCandidates(now.Add(31*time.Second), 30*time.Second)
	assert.Equal(t, []string{"tx1"}, candidates)

	// 归零后从最后一次非零观察起算
	s.UpdateMeter("tx2", MeterUpdate{PowerW: 0}, now.Add(40*time.Second))
	candidates = s.GhostCandidates(now.Add(45*time.Second), 30*time.Second)
	assert.Empty(t, candidates)

	candidates = s.GhostCandidates(now.Add(51*time.Second), 30*time.Second)
	assert.Equal(t, []string{"tx2"}, candidates)
}

func TestActiveSnapshotFilter(t *testing.T) {
	s := NewStore(1000)
	now := time.Now()
	s.Open("tx1", "CP01", 1, now)
	s.Open("tx2", "CP02", 1, now)

	assert.Len(t, s.ActiveSnapshot(""), 2)
	assert.Len(t, s.ActiveSnapshot("CP01"), 1)
	assert.Empty(t, s.ActiveSnapshot("CP09"))

	ids := s.ActiveIDsByStation("CP02")
	assert.Equal(t, []string{"tx2"}, ids)
}
