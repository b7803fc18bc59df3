package lending

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// FineDebiter is the part of a user's account a loan needs to charge a fine.
type FineDebiter interface {
	AddFine(amount decimal.Decimal) error
}

// Account holds a user's outstanding fine balance. The balance never goes below zero.
type Account struct {
	mu      sync.Mutex
	balance decimal.Decimal
}

// NewAccount restores an account with an existing balance.
func NewAccount(balance decimal.Decimal) (*Account, error) {
	if balance.IsNegative() {
		return nil, fmt.Errorf("%w: balance %s", ErrNegativeAmount, balance)
	}
	return &Account{balance: balance}, nil
}

// AddFine raises the balance.
func (a *Account) AddFine(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: fine %s", ErrNegativeAmount, amount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = a.balance.Add(amount)
	return nil
}

// PayFine lowers the balance; paying more than is owed is rejected.
func (a *Account) PayFine(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: payment %s", ErrNegativeAmount, amount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.balance) {
		return fmt.Errorf("%w: paying %s of %s", ErrOverpayment, amount, a.balance)
	}
	a.balance = a.balance.Sub(amount)
	return nil
}

func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}
