package settlement

import (
	"fmt"
	"math/big"
	"sync"
)

// LedgerTransport settles transfers against an in-process balance ledger.
// It backs local deployments and tests; production deployments substitute a
// chain-backed transport.
type LedgerTransport struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	failWith error
}

// NewLedgerTransport returns an empty in-process transport.
func NewLedgerTransport() *LedgerTransport {
	return &LedgerTransport{balances: make(map[string]*big.Int)}
}

// FailWith forces every subsequent Send to fail with err; nil restores
// normal operation.
func (t *LedgerTransport) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failWith = err
}

// Send credits the recipient's balance.
func (t *LedgerTransport) Send(to string, amount *big.Int, memo string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWith != nil {
		return t.failWith
	}
	if amount == nil {
		return fmt.Errorf("ledger transport: amount required")
	}
	balance, ok := t.balances[to]
	if !ok {
		balance = big.NewInt(0)
	}
	t.balances[to] = new(big.Int).Add(balance, amount)
	return nil
}

// Balance returns the credited balance for an account.
func (t *LedgerTransport) Balance(account string) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	balance, ok := t.balances[account]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}
