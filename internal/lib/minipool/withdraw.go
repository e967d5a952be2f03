package minipool

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/harborstake/minipoold/internal/lib/misc"
)

// WithdrawFinalFunds pays the owner their principal plus the operator reward
// leg and finishes the record.  This is also the payout path for
// Error-recovered entities (their reward legs are zero).
func (m *Manager) WithdrawFinalFunds(caller, identity string) (uint64, error) {
	m.Lock()
	defer m.Unlock()

	mp, err := m.ownedByIdentity(caller, identity)
	if err != nil {
		return 0, err
	}
	if err := requireValidTransition(mp.Status, StatusFinished); err != nil {
		return 0, err
	}
	payout, err := addChecked(mp.OperatorCapital, mp.OperatorRewardAmt)
	if err != nil {
		return 0, err
	}

	if err := m.vault.WithdrawCapital(payout); err != nil {
		return 0, err
	}
	if err := m.ledger.DecreaseStake(mp.Owner, mp.OperatorCapital); err != nil {
		return 0, err
	}

	from := mp.Status
	mp.Status = StatusFinished
	batch := new(leveldb.Batch)
	if err := m.store.PutRecord(batch, mp); err != nil {
		return 0, err
	}
	if err := m.store.Commit(batch); err != nil {
		return 0, err
	}
	m.notifyStatus(mp, from)
	misc.Infof(m.logger, "minipool %d (%s) final withdrawal of %d to owner %s", mp.Index, identity, payout, caller)
	return payout, nil
}

// WithdrawPartialRewards pays out the operator's unclaimed periodic rewards.
// Fails when nothing is owed.
func (m *Manager) WithdrawPartialRewards(caller, identity string) (uint64, error) {
	m.Lock()
	defer m.Unlock()

	mp, err := m.ownedByIdentity(caller, identity)
	if err != nil {
		return 0, err
	}
	owed := mp.OperatorUnclaimedPartialReward
	if owed == 0 {
		return 0, ErrNothingOwed
	}
	withdrawn, err := addChecked(mp.CumulativeRewardsWithdrawn, owed)
	if err != nil {
		return 0, err
	}

	if err := m.vault.WithdrawCapital(owed); err != nil {
		return 0, err
	}

	mp.OperatorUnclaimedPartialReward = 0
	mp.CumulativeRewardsWithdrawn = withdrawn
	batch := new(leveldb.Batch)
	if err := m.store.PutRecord(batch, mp); err != nil {
		return 0, err
	}
	if err := m.store.Commit(batch); err != nil {
		return 0, err
	}
	misc.Debugf(m.logger, "minipool %d (%s) partial reward withdrawal of %d to owner %s", mp.Index, identity, owed, caller)
	return owed, nil
}
