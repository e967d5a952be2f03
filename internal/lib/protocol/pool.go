package protocol

import (
	"fmt"
	"sync"
)

// StakerPool is a reference LiquidStakerPool backed by a single balance.
// Rewards received are tracked separately so operators can see yield
// distinct from returned principal.
type StakerPool struct {
	sync.Mutex
	available      uint64
	accruedRewards uint64
}

func NewStakerPool(initialDeposits uint64) *StakerPool {
	return &StakerPool{available: initialDeposits}
}

func (p *StakerPool) AmountAvailableForStaking() (uint64, error) {
	p.Lock()
	defer p.Unlock()
	return p.available, nil
}

func (p *StakerPool) WithdrawForStaking(amount uint64) error {
	p.Lock()
	defer p.Unlock()
	if p.available < amount {
		return fmt.Errorf("pool has %d available, cannot stake %d", p.available, amount)
	}
	p.available -= amount
	return nil
}

func (p *StakerPool) DepositFromStaking(principal, reward uint64) error {
	p.Lock()
	defer p.Unlock()
	if err := p.credit(principal + reward); err != nil {
		return err
	}
	p.accruedRewards += reward
	return nil
}

func (p *StakerPool) DepositFromPeriodicForwarding(amount uint64) error {
	p.Lock()
	defer p.Unlock()
	if err := p.credit(amount); err != nil {
		return err
	}
	p.accruedRewards += amount
	return nil
}

// Deposit adds external staker capital.
func (p *StakerPool) Deposit(amount uint64) error {
	p.Lock()
	defer p.Unlock()
	return p.credit(amount)
}

func (p *StakerPool) AccruedRewards() uint64 {
	p.Lock()
	defer p.Unlock()
	return p.accruedRewards
}

func (p *StakerPool) credit(amount uint64) error {
	next := p.available + amount
	if next < p.available {
		return fmt.Errorf("pool balance overflow crediting %d", amount)
	}
	p.available = next
	return nil
}
