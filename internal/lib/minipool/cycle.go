package minipool

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/harborstake/minipoold/internal/lib/misc"
)

// maybeRecycle decides, immediately after settlement, whether the entity's
// capital is compounded into a new cycle.  Renewal eligibility is anchored to
// the originally scheduled end of this validation slot (initialStartTime +
// duration), not the current cycle's start.
func (m *Manager) maybeRecycle(mp *Minipool) error {
	now := m.clock.Now()
	scheduledEnd := mp.InitialStartTime + int64(mp.Duration)
	toleranceEnd := scheduledEnd + m.params.RenewalTolerance()
	nextCycleEnd := now + m.params.CycleDuration()

	if nextCycleEnd > toleranceEnd {
		// gap too large; stay settled.  A narrow miss gets a diagnostic code
		// so off-core consumers can notice.
		overshoot := nextCycleEnd - scheduledEnd
		if overshoot >= 0 && overshoot < m.params.CycleDuration() {
			mp.ErrorCode = RenewalMissedCode
			batch := new(leveldb.Batch)
			if err := m.store.PutRecord(batch, mp); err != nil {
				return err
			}
			if err := m.store.Commit(batch); err != nil {
				return err
			}
			misc.Infof(m.logger, "minipool %d (%s) missed its renewal window by %ds", mp.Index, mp.ValidatorIdentity, overshoot-m.params.RenewalTolerance())
		}
		return nil
	}
	return m.recycle(mp, now)
}

// recycle recompounds the entity under the same index: operator capital
// grows by the liquid-staker reward leg and the pooled side mirrors it
// one-to-one, then the record is reset to Prelaunch and immediately
// relaunched through the renewal claim path.
func (m *Manager) recycle(mp *Minipool, now int64) error {
	if err := requireValidTransition(mp.Status, StatusPrelaunch); err != nil {
		return err
	}
	compounded, err := addChecked(mp.OperatorCapital, mp.LiquidStakerRewardAmt)
	if err != nil {
		return err
	}
	newPooled := compounded

	// operator side grew by the compounded reward leg; assignment covers the
	// whole new pooled amount (it was fully released at settlement)
	if err := m.registerStakeWithLedger(mp.Owner, mp.LiquidStakerRewardAmt, newPooled, now); err != nil {
		return err
	}

	from := mp.Status
	resetCycleFields(mp)
	mp.OperatorCapital = compounded
	mp.LiquidStakerCapital = newPooled
	mp.Status = StatusPrelaunch
	m.notifyStatus(mp, from)
	misc.Infof(m.logger, "minipool %d (%s) recompounded into new cycle, capital:%d per side", mp.Index, mp.ValidatorIdentity, compounded)

	return m.claimAndLaunch(mp, true)
}

// resetCycleFields clears all cycle-scoped fields on renewal.
// OperatorCapitalInitial and InitialStartTime are first-cycle-only fields;
// only a fresh admission replaces them.
func resetCycleFields(mp *Minipool) {
	mp.StartTime = 0
	mp.EndTime = 0
	mp.TotalReportedReward = 0
	mp.OperatorRewardAmt = 0
	mp.LiquidStakerRewardAmt = 0
	mp.CollateralSlashAmt = 0
	mp.LastRewardTime = 0
	mp.OperatorUnclaimedPartialReward = 0
	mp.LiquidStakerUnclaimedPartialReward = 0
	mp.ErrorCode = ""
}
