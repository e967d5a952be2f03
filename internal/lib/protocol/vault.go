package protocol

import (
	"fmt"
	"sync"
)

// Vault is an in-memory custody account for operator-side capital.
type Vault struct {
	sync.Mutex
	balance uint64
}

func NewVault() *Vault {
	return &Vault{}
}

func (v *Vault) DepositCapital(amount uint64) error {
	v.Lock()
	defer v.Unlock()
	next := v.balance + amount
	if next < v.balance {
		return fmt.Errorf("vault balance overflow depositing %d", amount)
	}
	v.balance = next
	return nil
}

func (v *Vault) WithdrawCapital(amount uint64) error {
	v.Lock()
	defer v.Unlock()
	if v.balance < amount {
		return fmt.Errorf("vault balance %d short of withdrawal %d", v.balance, amount)
	}
	v.balance -= amount
	return nil
}

func (v *Vault) Balance() uint64 {
	v.Lock()
	defer v.Unlock()
	return v.balance
}
