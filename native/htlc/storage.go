package htlc

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Sahilgill24/x3Fusion/storage"
)

var escrowRecordPrefix = []byte("htlc/escrow/")

// storedEscrow mirrors Escrow with RLP-friendly field types. Timestamps are
// stored unsigned; the decoder guards the int64 range.
type storedEscrow struct {
	OrderHash          string
	Hashlock           string
	Maker              string
	TakerAddress       string
	Amount             *big.Int
	SafetyDeposit      *big.Int
	WithdrawalAt       uint64
	PublicWithdrawalAt uint64
	CancellationAt     uint64
	CreatedAt          uint64
	DepositedAmount    *big.Int
	Depositor          string
	IsWithdrawn        bool
	IsCancelled        bool
	RevealedSecret     string
	SecretRevealed     bool
}

// Store persists escrow records in the underlying key-value store. One
// record per escrow; each operation loads and saves the whole record so a
// failed call leaves no partial state behind.
type Store struct {
	db storage.Database
}

// NewStore constructs a store bound to the provided database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func escrowKey(id [32]byte) []byte {
	buf := make([]byte, len(escrowRecordPrefix)+len(id))
	copy(buf, escrowRecordPrefix)
	copy(buf[len(escrowRecordPrefix):], id[:])
	return buf
}

// EscrowPut stores the escrow record, replacing any previous version.
func (s *Store) EscrowPut(esc *Escrow) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("htlc store: database not configured")
	}
	if esc == nil || esc.Immutables == nil || esc.Timelocks == nil {
		return fmt.Errorf("htlc store: incomplete escrow record")
	}
	encoded, err := rlp.EncodeToBytes(toStoredEscrow(esc))
	if err != nil {
		return err
	}
	return s.db.Put(escrowKey(esc.ID()), encoded)
}

// EscrowGet retrieves an escrow by identifier.
func (s *Store) EscrowGet(id [32]byte) (*Escrow, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("htlc store: database not configured")
	}
	raw, ok, err := s.db.Get(escrowKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var stored storedEscrow
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, err
	}
	esc, err := fromStoredEscrow(&stored)
	if err != nil {
		return nil, false, err
	}
	return esc, true, nil
}

func clampUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func uint64ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("value %d exceeds int64 range", v)
	}
	return int64(v), nil
}

func toStoredEscrow(esc *Escrow) *storedEscrow {
	stored := &storedEscrow{
		OrderHash:          esc.Immutables.OrderHash,
		Hashlock:           esc.Immutables.Hashlock,
		Maker:              esc.Immutables.Maker,
		TakerAddress:       esc.Immutables.TakerAddress,
		Amount:             esc.Immutables.Amount,
		SafetyDeposit:      esc.Immutables.SafetyDeposit,
		WithdrawalAt:       clampUint64(esc.Timelocks.WithdrawalAt),
		PublicWithdrawalAt: clampUint64(esc.Timelocks.PublicWithdrawalAt),
		CancellationAt:     clampUint64(esc.Timelocks.CancellationAt),
		CreatedAt:          clampUint64(esc.Timelocks.CreatedAt),
		DepositedAmount:    esc.DepositedAmount,
		Depositor:          esc.Depositor,
		IsWithdrawn:        esc.IsWithdrawn,
		IsCancelled:        esc.IsCancelled,
		RevealedSecret:     esc.RevealedSecret,
		SecretRevealed:     esc.SecretRevealed,
	}
	if stored.Amount == nil {
		stored.Amount = big.NewInt(0)
	}
	if stored.SafetyDeposit == nil {
		stored.SafetyDeposit = big.NewInt(0)
	}
	if stored.DepositedAmount == nil {
		stored.DepositedAmount = big.NewInt(0)
	}
	return stored
}

func fromStoredEscrow(stored *storedEscrow) (*Escrow, error) {
	if stored == nil {
		return nil, fmt.Errorf("htlc store: nil stored record")
	}
	withdrawalAt, err := uint64ToInt64(stored.WithdrawalAt)
	if err != nil {
		return nil, fmt.Errorf("htlc store: withdrawal timelock: %w", err)
	}
	publicWithdrawalAt, err := uint64ToInt64(stored.PublicWithdrawalAt)
	if err != nil {
		return nil, fmt.Errorf("htlc store: public withdrawal timelock: %w", err)
	}
	cancellationAt, err := uint64ToInt64(stored.CancellationAt)
	if err != nil {
		return nil, fmt.Errorf("htlc store: cancellation timelock: %w", err)
	}
	createdAt, err := uint64ToInt64(stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("htlc store: created at: %w", err)
	}
	esc := &Escrow{
		Immutables: &Immutables{
			OrderHash:     stored.OrderHash,
			Hashlock:      stored.Hashlock,
			Maker:         stored.Maker,
			TakerAddress:  stored.TakerAddress,
			Amount:        new(big.Int).Set(stored.Amount),
			SafetyDeposit: new(big.Int).Set(stored.SafetyDeposit),
		},
		Timelocks: &Timelocks{
			WithdrawalAt:       withdrawalAt,
			PublicWithdrawalAt: publicWithdrawalAt,
			CancellationAt:     cancellationAt,
			CreatedAt:          createdAt,
		},
		DepositedAmount: new(big.Int).Set(stored.DepositedAmount),
		Depositor:       stored.Depositor,
		IsWithdrawn:     stored.IsWithdrawn,
		IsCancelled:     stored.IsCancelled,
		RevealedSecret:  stored.RevealedSecret,
		SecretRevealed:  stored.SecretRevealed,
	}
	return esc, nil
}
