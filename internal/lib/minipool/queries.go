package minipool

import "github.com/syndtr/goleveldb/leveldb"

// Read-only surface consumed by off-core tooling.

func (m *Manager) GetMinipool(identity string) (*Minipool, error) {
	return m.store.ByIdentity(identity)
}

func (m *Manager) GetMinipoolByIndex(index uint64) (*Minipool, error) {
	return m.store.ByIndex(index)
}

// ListMinipools returns a page of records, optionally filtered to one status.
func (m *Manager) ListMinipools(filter *MinipoolStatus, offset, limit uint64) ([]*Minipool, error) {
	return m.store.List(filter, offset, limit)
}

func (m *Manager) MinipoolCount() (uint64, error) {
	return m.store.Count()
}

// LiquidStakedTotal is the global pooled-capital aggregate across all active
// records; it equals the sum of every active record's liquidStakerCapital.
func (m *Manager) LiquidStakedTotal() (uint64, error) {
	return m.store.LiquidStakedTotal()
}

func (m *Manager) HeldFunds() (uint64, error) {
	return m.store.HeldFunds()
}

// RewardCycleEnd returns the global rewards-forwarding cursor.
func (m *Manager) RewardCycleEnd() (int64, error) {
	return m.store.RewardCycleEnd()
}

// AdvanceRewardCycle moves the forwarding cursor ahead one cycle once the
// clock has passed it; the daemon drives this.  Returns the cursor in force
// after the call.
func (m *Manager) AdvanceRewardCycle() (int64, error) {
	m.Lock()
	defer m.Unlock()

	cursor, err := m.store.RewardCycleEnd()
	if err != nil {
		return 0, err
	}
	now := m.clock.Now()
	if cursor == 0 {
		cursor = now
	}
	if now < cursor {
		return cursor, nil
	}
	for now >= cursor {
		cursor += m.params.CycleDuration()
	}
	batch := new(leveldb.Batch)
	m.store.SetRewardCycleEnd(batch, cursor)
	if err := m.store.Commit(batch); err != nil {
		return 0, err
	}
	return cursor, nil
}
