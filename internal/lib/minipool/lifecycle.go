package minipool

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/harborstake/minipoold/internal/lib/misc"
)

// All operations in this file are reported by the record's assigned
// validator-agent; any other caller fails the guard layer.

// ClaimAndInitiateStaking withdraws the matched pooled capital and the
// escrowed operator capital and commits both to the external validation
// process under the identity's registration credentials.
func (m *Manager) ClaimAndInitiateStaking(caller, identity string) error {
	m.Lock()
	defer m.Unlock()

	mp, err := m.agentReported(caller, identity)
	if err != nil {
		return err
	}
	return m.claimAndLaunch(mp, false)
}

// claimAndLaunch is shared with the cycle-renewal path; renewal bypasses the
// pool-availability check because recompounded capital was never released to
// outside callers.
func (m *Manager) claimAndLaunch(mp *Minipool, renewal bool) error {
	if err := requireValidTransition(mp.Status, StatusLaunched); err != nil {
		return err
	}
	if !renewal {
		available, err := m.pool.AmountAvailableForStaking()
		if err != nil {
			return err
		}
		if available < mp.LiquidStakerCapital {
			return ErrInsufficientPoolLiquidity
		}
	}
	combined, err := addChecked(mp.OperatorCapital, mp.LiquidStakerCapital)
	if err != nil {
		return err
	}
	credentials, err := m.creds.CredentialsFor(mp.ValidatorIdentity)
	if err != nil {
		return err
	}
	staked, err := m.store.LiquidStakedTotal()
	if err != nil {
		return err
	}
	newStaked, err := addChecked(staked, mp.LiquidStakerCapital)
	if err != nil {
		return err
	}

	if err := m.pool.WithdrawForStaking(mp.LiquidStakerCapital); err != nil {
		return err
	}
	if err := m.vault.WithdrawCapital(mp.OperatorCapital); err != nil {
		return err
	}
	if err := m.registry.Register(credentials, combined); err != nil {
		return err
	}

	from := mp.Status
	mp.Status = StatusLaunched
	batch := new(leveldb.Batch)
	m.store.SetLiquidStakedTotal(batch, newStaked)
	if err := m.store.PutRecord(batch, mp); err != nil {
		return err
	}
	if err := m.store.Commit(batch); err != nil {
		return err
	}
	promLiquidStakedTotal.Set(float64(newStaked))
	m.notifyStatus(mp, from)
	return nil
}

// RecordStakingStart stamps the start of validation as observed on the
// external chain.  Future-dated start times are rejected.
func (m *Manager) RecordStakingStart(caller, identity string, startTime int64) error {
	m.Lock()
	defer m.Unlock()

	mp, err := m.agentReported(caller, identity)
	if err != nil {
		return err
	}
	if err := requireValidTransition(mp.Status, StatusStaking); err != nil {
		return err
	}
	if startTime > m.clock.Now() {
		return ErrFutureTimestamp
	}

	mp.StartTime = startTime
	mp.EndTime = startTime + int64(mp.Duration)
	if mp.InitialStartTime == 0 {
		// first-ever cycle of this admission; renewal never resets it
		mp.InitialStartTime = startTime
	}
	mp.LastRewardTime = startTime
	mp.CumulativeRewardsWithdrawn = 0

	if err := m.ledger.IncreaseValidating(mp.Owner, mp.LiquidStakerCapital); err != nil {
		return err
	}
	validating, err := m.ledger.ValidatingOf(mp.Owner)
	if err != nil {
		return err
	}
	highWater, err := m.ledger.HighWaterMark(mp.Owner)
	if err != nil {
		return err
	}
	if validating > highWater {
		if err := m.ledger.SetHighWaterMark(mp.Owner, validating); err != nil {
			return err
		}
	}

	from := mp.Status
	mp.Status = StatusStaking
	batch := new(leveldb.Batch)
	if err := m.store.PutRecord(batch, mp); err != nil {
		return err
	}
	if err := m.store.Commit(batch); err != nil {
		return err
	}
	m.notifyStatus(mp, from)
	return nil
}

// DistributeRewards forwards one reward interval's earnings: half to each
// side, commission taken from the liquid-staker half.  The agent forwards
// the interval reward with the call.  A zero interval reward triggers
// slashing instead and moves no funds.
func (m *Manager) DistributeRewards(caller, identity string, reward, forwarded uint64) error {
	m.Lock()
	defer m.Unlock()

	mp, err := m.agentReported(caller, identity)
	if err != nil {
		return err
	}
	// gated exactly like final settlement
	if err := requireValidTransition(mp.Status, StatusWithdrawable); err != nil {
		return err
	}
	now := m.clock.Now()
	elapsed := now - mp.LastRewardTime
	if elapsed < m.params.RewardInterval() {
		return ErrRewardIntervalNotMet
	}

	batch := new(leveldb.Batch)
	if reward == 0 {
		if forwarded != 0 {
			return ErrUnexpectedForwardedFunds
		}
		if err := m.applySlash(mp, elapsed); err != nil {
			return err
		}
		// consume the interval so the same window cannot be slashed again
		mp.LastRewardTime = now
		if err := m.store.PutRecord(batch, mp); err != nil {
			return err
		}
		return m.store.Commit(batch)
	}

	held, err := m.store.HeldFunds()
	if err != nil {
		return err
	}
	available, err := addChecked(held, forwarded)
	if err != nil {
		return err
	}
	if available < reward {
		return ErrInsufficientHeldFunds
	}
	operatorShare, liquidShare := splitReward(reward, m.params.CommissionFee())

	unclaimedOp, err := addChecked(mp.OperatorUnclaimedPartialReward, operatorShare)
	if err != nil {
		return err
	}
	unclaimedLiq, err := addChecked(mp.LiquidStakerUnclaimedPartialReward, liquidShare)
	if err != nil {
		return err
	}

	if err := m.vault.DepositCapital(operatorShare); err != nil {
		return err
	}
	if err := m.pool.DepositFromPeriodicForwarding(liquidShare); err != nil {
		return err
	}

	mp.OperatorUnclaimedPartialReward = unclaimedOp
	mp.LiquidStakerUnclaimedPartialReward = unclaimedLiq
	mp.LastRewardTime = now

	newHeld := available - reward
	m.store.SetHeldFunds(batch, newHeld)
	if err := m.store.PutRecord(batch, mp); err != nil {
		return err
	}
	if err := m.store.Commit(batch); err != nil {
		return err
	}
	promHeldFunds.Set(float64(newHeld))
	promRewardsDistributed.Add(float64(reward))
	misc.Debugf(m.logger, "minipool %d interval reward %d distributed, operator:%d liquid:%d", mp.Index, reward, operatorShare, liquidShare)
	return nil
}

// RecordStakingEnd performs final settlement for the just-ended cycle.  The
// agent forwards the returned principal plus the reported reward with the
// call; the operation fails closed if held funds cannot cover the payouts.
func (m *Manager) RecordStakingEnd(caller, identity string, endTime int64, totalReward, forwarded uint64) error {
	m.Lock()
	defer m.Unlock()

	mp, err := m.agentReported(caller, identity)
	if err != nil {
		return err
	}
	return m.settle(mp, endTime, totalReward, forwarded)
}

// RecordStakingEndThenMaybeCycle settles and then decides renewal in the same
// exclusive operation, so the pooled capital cannot be claimed by another
// entity between settlement and re-assignment.
func (m *Manager) RecordStakingEndThenMaybeCycle(caller, identity string, endTime int64, totalReward, forwarded uint64) error {
	m.Lock()
	defer m.Unlock()

	mp, err := m.agentReported(caller, identity)
	if err != nil {
		return err
	}
	if err := m.settle(mp, endTime, totalReward, forwarded); err != nil {
		return err
	}
	return m.maybeRecycle(mp)
}

func (m *Manager) settle(mp *Minipool, endTime int64, totalReward, forwarded uint64) error {
	if err := requireValidTransition(mp.Status, StatusWithdrawable); err != nil {
		return err
	}
	if endTime <= mp.StartTime {
		return ErrEndBeforeStart
	}
	if endTime > m.clock.Now() {
		return ErrFutureTimestamp
	}

	held, err := m.store.HeldFunds()
	if err != nil {
		return err
	}
	available, err := addChecked(held, forwarded)
	if err != nil {
		return err
	}
	principal, err := addChecked(mp.OperatorCapital, mp.LiquidStakerCapital)
	if err != nil {
		return err
	}
	needed, err := addChecked(principal, totalReward)
	if err != nil {
		return err
	}
	if available < needed {
		return ErrInsufficientHeldFunds
	}

	mp.EndTime = endTime
	mp.TotalReportedReward = totalReward

	var operatorShare, liquidShare uint64
	if totalReward == 0 {
		if err := m.applySlash(mp, endTime-mp.StartTime); err != nil {
			return err
		}
	} else {
		// the split covers the full reported reward, not the increment
		// beyond any periodic distributions
		operatorShare, liquidShare = splitReward(totalReward, m.params.CommissionFee())
	}
	mp.OperatorRewardAmt = operatorShare
	mp.LiquidStakerRewardAmt = liquidShare

	if err := m.vault.DepositCapital(mp.OperatorCapital + operatorShare); err != nil {
		return err
	}
	if err := m.pool.DepositFromStaking(mp.LiquidStakerCapital, liquidShare); err != nil {
		return err
	}
	if err := m.ledger.DecreaseAssigned(mp.Owner, mp.LiquidStakerCapital); err != nil {
		return err
	}
	if err := m.ledger.DecreaseValidating(mp.Owner, mp.LiquidStakerCapital); err != nil {
		return err
	}

	staked, err := m.store.LiquidStakedTotal()
	if err != nil {
		return err
	}
	newStaked := staked - mp.LiquidStakerCapital
	newHeld := available - needed

	from := mp.Status
	mp.Status = StatusWithdrawable
	batch := new(leveldb.Batch)
	m.store.SetHeldFunds(batch, newHeld)
	m.store.SetLiquidStakedTotal(batch, newStaked)
	if err := m.store.PutRecord(batch, mp); err != nil {
		return err
	}
	if err := m.store.Commit(batch); err != nil {
		return err
	}
	promHeldFunds.Set(float64(newHeld))
	promLiquidStakedTotal.Set(float64(newStaked))
	m.notifyStatus(mp, from)
	return nil
}

// RecordStakingError is the agent-reported recovery path: the caller must
// forward exactly the combined operator and pooled capital as an immediate
// refund.  Reward fields are cleared and the diagnostic code stored for
// off-core consumers.
func (m *Manager) RecordStakingError(caller, identity string, forwarded uint64, errorCode string) error {
	m.Lock()
	defer m.Unlock()

	mp, err := m.agentReported(caller, identity)
	if err != nil {
		return err
	}
	if err := requireValidTransition(mp.Status, StatusError); err != nil {
		return err
	}
	refund, err := addChecked(mp.OperatorCapital, mp.LiquidStakerCapital)
	if err != nil {
		return err
	}
	if forwarded != refund {
		return ErrIncorrectRefundAmount
	}

	mp.TotalReportedReward = 0
	mp.OperatorRewardAmt = 0
	mp.LiquidStakerRewardAmt = 0
	mp.ErrorCode = errorCode

	if err := m.vault.DepositCapital(mp.OperatorCapital); err != nil {
		return err
	}
	if err := m.pool.DepositFromStaking(mp.LiquidStakerCapital, 0); err != nil {
		return err
	}
	if err := m.ledger.DecreaseAssigned(mp.Owner, mp.LiquidStakerCapital); err != nil {
		return err
	}
	// the validating figure only exists once staking began
	if mp.Status == StatusStaking {
		if err := m.ledger.DecreaseValidating(mp.Owner, mp.LiquidStakerCapital); err != nil {
			return err
		}
	}

	staked, err := m.store.LiquidStakedTotal()
	if err != nil {
		return err
	}
	newStaked := staked - mp.LiquidStakerCapital

	from := mp.Status
	mp.Status = StatusError
	batch := new(leveldb.Batch)
	m.store.SetLiquidStakedTotal(batch, newStaked)
	if err := m.store.PutRecord(batch, mp); err != nil {
		return err
	}
	if err := m.store.Commit(batch); err != nil {
		return err
	}
	promLiquidStakedTotal.Set(float64(newStaked))
	m.notifyStatus(mp, from)
	return nil
}

// CancelMinipoolByAgent is agent-initiated cancellation, usable before claim.
// It stores the diagnostic code then follows the owner-cancellation fund
// return path (no moratorium applies).
func (m *Manager) CancelMinipoolByAgent(caller, identity, errorCode string) error {
	m.Lock()
	defer m.Unlock()

	mp, err := m.agentReported(caller, identity)
	if err != nil {
		return err
	}
	if err := requireValidTransition(mp.Status, StatusCanceled); err != nil {
		return err
	}
	mp.ErrorCode = errorCode
	return m.cancelAndReturnFunds(mp)
}

// applySlash seizes collateral sized to the reward the elapsed period should
// have produced, clamped to the owner's current collateral balance.
func (m *Manager) applySlash(mp *Minipool, elapsed int64) error {
	expected, err := expectedReward(mp.LiquidStakerCapital, m.params.ExpectedRewardRate(), elapsed)
	if err != nil {
		return err
	}
	price, err := m.oracle.CollateralPrice()
	if err != nil {
		return err
	}
	amount, err := slashAmount(expected, price)
	if err != nil {
		return err
	}
	balance, err := m.ledger.CollateralBalanceOf(mp.Owner)
	if err != nil {
		return err
	}
	if amount > balance {
		amount = balance
	}
	if err := m.ledger.ApplySlash(mp.Owner, amount); err != nil {
		return err
	}
	slashed, err := addChecked(mp.CollateralSlashAmt, amount)
	if err != nil {
		return err
	}
	mp.CollateralSlashAmt = slashed
	promSlashTotal.Add(float64(amount))
	misc.Warnf(m.logger, "minipool %d (%s) slashed %d collateral for zero reported reward over %ds", mp.Index, mp.ValidatorIdentity, amount, elapsed)
	return nil
}
