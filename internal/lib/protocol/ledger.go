package protocol

import (
	"math"
	"math/big"
	"sync"

	"github.com/harborstake/minipoold/internal/lib/minipool"
)

// Ledger is a reference CollateralLedger keyed by owner account.  Decrease
// operations clamp at zero rather than erroring so that compensating
// rollbacks always succeed.
type Ledger struct {
	sync.RWMutex
	oracle   minipool.PriceOracle
	accounts map[string]*ledgerAccount
}

type ledgerAccount struct {
	staked          uint64
	assigned        uint64
	validating      uint64
	highWater       uint64
	rewardEligStart int64
	collateral      uint64
}

func NewLedger(oracle minipool.PriceOracle) *Ledger {
	return &Ledger{
		oracle:   oracle,
		accounts: map[string]*ledgerAccount{},
	}
}

func (l *Ledger) account(owner string) *ledgerAccount {
	acct, ok := l.accounts[owner]
	if !ok {
		acct = &ledgerAccount{}
		l.accounts[owner] = acct
	}
	return acct
}

func (l *Ledger) IncreaseStake(owner string, amount uint64) error {
	l.Lock()
	defer l.Unlock()
	l.account(owner).staked += amount
	return nil
}

func (l *Ledger) DecreaseStake(owner string, amount uint64) error {
	l.Lock()
	defer l.Unlock()
	acct := l.account(owner)
	acct.staked = clampSub(acct.staked, amount)
	return nil
}

func (l *Ledger) IncreaseAssigned(owner string, amount uint64) error {
	l.Lock()
	defer l.Unlock()
	l.account(owner).assigned += amount
	return nil
}

func (l *Ledger) DecreaseAssigned(owner string, amount uint64) error {
	l.Lock()
	defer l.Unlock()
	acct := l.account(owner)
	acct.assigned = clampSub(acct.assigned, amount)
	return nil
}

func (l *Ledger) IncreaseValidating(owner string, amount uint64) error {
	l.Lock()
	defer l.Unlock()
	l.account(owner).validating += amount
	return nil
}

func (l *Ledger) DecreaseValidating(owner string, amount uint64) error {
	l.Lock()
	defer l.Unlock()
	acct := l.account(owner)
	acct.validating = clampSub(acct.validating, amount)
	return nil
}

func (l *Ledger) AssignedOf(owner string) (uint64, error) {
	l.RLock()
	defer l.RUnlock()
	if acct, ok := l.accounts[owner]; ok {
		return acct.assigned, nil
	}
	return 0, nil
}

func (l *Ledger) ValidatingOf(owner string) (uint64, error) {
	l.RLock()
	defer l.RUnlock()
	if acct, ok := l.accounts[owner]; ok {
		return acct.validating, nil
	}
	return 0, nil
}

func (l *Ledger) HighWaterMark(owner string) (uint64, error) {
	l.RLock()
	defer l.RUnlock()
	if acct, ok := l.accounts[owner]; ok {
		return acct.highWater, nil
	}
	return 0, nil
}

func (l *Ledger) SetHighWaterMark(owner string, amount uint64) error {
	l.Lock()
	defer l.Unlock()
	l.account(owner).highWater = amount
	return nil
}

// CollateralizationRatio is the native-asset value of the owner's collateral
// as a fraction of their assigned pooled capital.  An owner with nothing
// assigned is fully collateralized.
func (l *Ledger) CollateralizationRatio(owner string) (uint64, error) {
	l.RLock()
	acct, ok := l.accounts[owner]
	var collateral, assigned uint64
	if ok {
		collateral, assigned = acct.collateral, acct.assigned
	}
	l.RUnlock()

	if assigned == 0 {
		return math.MaxUint64, nil
	}
	price, err := l.oracle.CollateralPrice()
	if err != nil {
		return 0, err
	}
	// ratio = collateral * price / assigned, all against FractionScale
	num := new(big.Int).Mul(new(big.Int).SetUint64(collateral), new(big.Int).SetUint64(price))
	num.Div(num, new(big.Int).SetUint64(assigned))
	if !num.IsUint64() {
		return math.MaxUint64, nil
	}
	return num.Uint64(), nil
}

func (l *Ledger) RewardEligibilityStart(owner string) (int64, error) {
	l.RLock()
	defer l.RUnlock()
	if acct, ok := l.accounts[owner]; ok {
		return acct.rewardEligStart, nil
	}
	return 0, nil
}

func (l *Ledger) SetRewardEligibilityStart(owner string, t int64) error {
	l.Lock()
	defer l.Unlock()
	l.account(owner).rewardEligStart = t
	return nil
}

func (l *Ledger) CollateralBalanceOf(owner string) (uint64, error) {
	l.RLock()
	defer l.RUnlock()
	if acct, ok := l.accounts[owner]; ok {
		return acct.collateral, nil
	}
	return 0, nil
}

func (l *Ledger) ApplySlash(owner string, amount uint64) error {
	l.Lock()
	defer l.Unlock()
	acct := l.account(owner)
	acct.collateral = clampSub(acct.collateral, amount)
	return nil
}

// DepositCollateral adds collateral-asset stake backing the owner's pools.
func (l *Ledger) DepositCollateral(owner string, amount uint64) error {
	l.Lock()
	defer l.Unlock()
	l.account(owner).collateral += amount
	return nil
}

func clampSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
