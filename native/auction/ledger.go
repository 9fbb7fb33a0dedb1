package auction

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Sahilgill24/x3Fusion/storage"
)

var fillRecordPrefix = []byte("auction/fill/")

// Ledger persists the cumulative filled amount per order hash. It is the
// optional bookkeeping extension of the pricer: the pure pricing functions
// never touch it.
type Ledger struct {
	db storage.Database
}

// NewLedger constructs a ledger bound to the provided database.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func fillKey(orderHash string) []byte {
	trimmed := strings.TrimSpace(orderHash)
	buf := make([]byte, len(fillRecordPrefix)+len(trimmed))
	copy(buf, fillRecordPrefix)
	copy(buf[len(fillRecordPrefix):], trimmed)
	return buf
}

// Filled returns the recorded fill for the order hash, zero when absent.
func (l *Ledger) Filled(orderHash string) (*big.Int, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("auction ledger: database not configured")
	}
	if strings.TrimSpace(orderHash) == "" {
		return nil, fmt.Errorf("%w: order hash required", ErrInputValidation)
	}
	raw, ok, err := l.db.Get(fillKey(orderHash))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	filled := new(big.Int)
	if err := rlp.DecodeBytes(raw, filled); err != nil {
		return nil, err
	}
	return filled, nil
}

// SetFilled records the cumulative filled amount for the order hash.
func (l *Ledger) SetFilled(orderHash string, amount *big.Int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("auction ledger: database not configured")
	}
	if strings.TrimSpace(orderHash) == "" {
		return fmt.Errorf("%w: order hash required", ErrInputValidation)
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: filled amount must be non-negative", ErrInputValidation)
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return l.db.Put(fillKey(orderHash), encoded)
}
