package minipool

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/harborstake/minipoold/internal/lib/misc"
)

// CreateMinipool validates and records a new (or reused) minipool.  The
// caller becomes the owner; sent is the operator capital escrowed with the
// call and requested is the pooled capital to match at claim time.  Failure
// of any validation aborts the whole operation with no partial state change.
func (m *Manager) CreateMinipool(caller, identity string, duration, delegationFee, sent, requested uint64) (*Minipool, error) {
	m.Lock()
	defer m.Unlock()

	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	if err := m.validateCapitalTier(caller, sent, requested); err != nil {
		return nil, err
	}
	if duration < m.params.MinStakingDuration() || duration > m.params.MaxStakingDuration() {
		return nil, ErrInvalidDuration
	}
	if delegationFee < MinDelegationFee || delegationFee >= FractionScale {
		return nil, ErrInvalidDelegationFee
	}

	// Reuse-or-create: an index, once assigned, is permanently bound to its
	// identity; a prior record must be in a reusable terminal state.
	count, err := m.store.Count()
	if err != nil {
		return nil, err
	}
	index := count
	prev, found, err := m.findExisting(identity)
	if err != nil {
		return nil, err
	}
	if found {
		if err := requireValidTransition(prev.Status, StatusPrelaunch); err != nil {
			return nil, err
		}
		index = prev.Index
	}

	agent, err := m.agents.NextAvailableAgent()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAgentAvailable, err)
	}

	now := m.clock.Now()
	if err := m.registerStakeWithLedger(caller, sent, requested, now); err != nil {
		return nil, err
	}

	if err := m.vault.DepositCapital(sent); err != nil {
		m.unregisterStakeWithLedger(caller, sent, requested)
		return nil, fmt.Errorf("unable to escrow operator capital: %w", err)
	}

	mp := &Minipool{
		Index:             index,
		ValidatorIdentity: identity,
		Status:            StatusPrelaunch,
		Duration:          duration,
		DelegationFee:     delegationFee,
		Owner:             caller,
		AssignedAgent:     agent,

		OperatorCapital:        sent,
		OperatorCapitalInitial: sent,
		LiquidStakerCapital:    requested,

		CreationTime: now,
		// InitialStartTime stays zero: the first recordStakingStart of this
		// fresh admission stamps it.
	}

	batch := new(leveldb.Batch)
	if err := m.store.PutRecord(batch, mp); err != nil {
		return nil, err
	}
	if !found {
		m.store.BindIdentity(batch, identity, index)
		m.store.SetCount(batch, count+1)
	}
	if err := m.store.Commit(batch); err != nil {
		return nil, err
	}
	if found {
		misc.Infof(m.logger, "minipool %d (%s) re-admitted to Prelaunch, operator:%d pooled:%d", mp.Index, identity, sent, requested)
	} else {
		misc.Infof(m.logger, "minipool %d (%s) created, operator:%d pooled:%d agent:%s", mp.Index, identity, sent, requested, agent)
	}
	return mp, nil
}

// CancelMinipool is the owner-initiated exit, valid only while Prelaunch and
// only after the cancellation moratorium has elapsed since creation.
func (m *Manager) CancelMinipool(caller, identity string) error {
	m.Lock()
	defer m.Unlock()

	mp, err := m.ownedByIdentity(caller, identity)
	if err != nil {
		return err
	}
	if err := requireValidTransition(mp.Status, StatusCanceled); err != nil {
		return err
	}
	if m.clock.Now()-mp.CreationTime < m.params.CancelMoratorium() {
		return ErrCancelMoratorium
	}
	return m.cancelAndReturnFunds(mp)
}

// cancelAndReturnFunds performs the shared fund-return path of owner- and
// agent-initiated cancellation.  Pooled capital was never withdrawn from the
// pool before claim, so only the ledger assignment needs reversing.  A vault
// failure reverses the ledger changes so the operation leaves no trace.
func (m *Manager) cancelAndReturnFunds(mp *Minipool) error {
	if err := m.ledger.DecreaseStake(mp.Owner, mp.OperatorCapital); err != nil {
		return err
	}
	if err := m.ledger.DecreaseAssigned(mp.Owner, mp.LiquidStakerCapital); err != nil {
		m.ledger.IncreaseStake(mp.Owner, mp.OperatorCapital)
		return err
	}
	assigned, err := m.ledger.AssignedOf(mp.Owner)
	if err != nil {
		m.reregisterStakeWithLedger(mp)
		return err
	}
	var priorEligible int64
	if assigned == 0 {
		priorEligible, err = m.ledger.RewardEligibilityStart(mp.Owner)
		if err == nil {
			err = m.ledger.SetRewardEligibilityStart(mp.Owner, 0)
		}
		if err != nil {
			m.reregisterStakeWithLedger(mp)
			return err
		}
	}
	if err := m.vault.WithdrawCapital(mp.OperatorCapital); err != nil {
		m.reregisterStakeWithLedger(mp)
		if assigned == 0 {
			m.ledger.SetRewardEligibilityStart(mp.Owner, priorEligible)
		}
		return err
	}

	from := mp.Status
	mp.Status = StatusCanceled
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

// validateCapitalTier applies the capital rules of the caller's tier.  The
// first ReducedTierSlots early participants may post a reduced operator
// minimum against a fixed pooled match summing to the total stake target;
// everyone else must match pooled capital one-to-one within the per-entity
// bounds.
func (m *Manager) validateCapitalTier(caller string, sent, requested uint64) error {
	idx, enrolled, err := m.earlyReg.IndexOf(caller)
	if err != nil {
		return err
	}
	combined, err := addChecked(sent, requested)
	if err != nil {
		return err
	}

	if enrolled && idx < m.params.ReducedTierSlots() {
		if sent < m.params.ReducedTierMinimum() {
			return ErrInvalidCapital
		}
		if combined != m.params.TotalStakeTarget() || requested != m.params.MaxPooledMatch() {
			return ErrInvalidCapital
		}
		return nil
	}

	if sent != requested {
		return ErrInvalidCapital
	}
	if requested < m.params.MinCapitalPerMinipool() || requested > m.params.MaxCapitalPerMinipool() {
		return ErrInvalidCapital
	}
	if combined < m.params.MinTotalStake() {
		return ErrInvalidCapital
	}
	return nil
}

// registerStakeWithLedger records the increased stake and assignment,
// initializes the owner's reward-eligibility clock if unset, and verifies the
// resulting collateralization ratio.  On ratio failure the registration is
// reversed so the operation leaves no trace.
func (m *Manager) registerStakeWithLedger(owner string, sent, requested uint64, now int64) error {
	if err := m.ledger.IncreaseStake(owner, sent); err != nil {
		return err
	}
	if err := m.ledger.IncreaseAssigned(owner, requested); err != nil {
		m.ledger.DecreaseStake(owner, sent)
		return err
	}
	eligibleSince, err := m.ledger.RewardEligibilityStart(owner)
	if err != nil {
		m.unregisterStakeWithLedger(owner, sent, requested)
		return err
	}
	clockSet := false
	if eligibleSince == 0 {
		if err := m.ledger.SetRewardEligibilityStart(owner, now); err != nil {
			m.unregisterStakeWithLedger(owner, sent, requested)
			return err
		}
		clockSet = true
	}
	ratio, err := m.ledger.CollateralizationRatio(owner)
	if err == nil && ratio < m.params.MinCollateralizationRatio() {
		err = ErrBelowMinCollateralization
	}
	if err != nil {
		m.unregisterStakeWithLedger(owner, sent, requested)
		if clockSet {
			m.ledger.SetRewardEligibilityStart(owner, 0)
		}
		return err
	}
	return nil
}

func (m *Manager) unregisterStakeWithLedger(owner string, sent, requested uint64) {
	m.ledger.DecreaseStake(owner, sent)
	m.ledger.DecreaseAssigned(owner, requested)
}

func (m *Manager) reregisterStakeWithLedger(mp *Minipool) {
	m.ledger.IncreaseStake(mp.Owner, mp.OperatorCapital)
	m.ledger.IncreaseAssigned(mp.Owner, mp.LiquidStakerCapital)
}

func (m *Manager) findExisting(identity string) (*Minipool, bool, error) {
	index, found, err := m.store.FindIndex(identity)
	if err != nil || !found {
		return nil, false, err
	}
	mp, err := m.store.ByIndex(index)
	if err != nil {
		return nil, false, err
	}
	return mp, true, nil
}
