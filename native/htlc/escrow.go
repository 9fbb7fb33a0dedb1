package htlc

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// Escrow combines the immutable swap parameters and timelocks with the
// mutable settlement state of one swap leg. The terminal flags are mutually
// exclusive and permanent: once either is set no call may flip them back.
type Escrow struct {
	Immutables *Immutables
	Timelocks  *Timelocks

	DepositedAmount *big.Int
	Depositor       string
	IsWithdrawn     bool
	IsCancelled     bool
	RevealedSecret  string
	SecretRevealed  bool
}

// Clone returns a deep copy so callers can safely hold the result.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Immutables = e.Immutables.Clone()
	clone.Timelocks = e.Timelocks.Clone()
	if e.DepositedAmount != nil {
		clone.DepositedAmount = new(big.Int).Set(e.DepositedAmount)
	} else {
		clone.DepositedAmount = big.NewInt(0)
	}
	return &clone
}

// ID returns the 32-byte escrow identifier (the validated order hash).
func (e *Escrow) ID() [32]byte {
	if e == nil {
		return [32]byte{}
	}
	return e.Immutables.ID()
}

// IsActive reports whether the escrow has not yet reached a terminal state.
func (e *Escrow) IsActive() bool {
	return e != nil && !e.IsWithdrawn && !e.IsCancelled
}

// Status returns the lifecycle state as a string.
func (e *Escrow) Status() string {
	switch {
	case e == nil:
		return "unknown"
	case e.IsWithdrawn:
		return "withdrawn"
	case e.IsCancelled:
		return "cancelled"
	default:
		return "active"
	}
}

type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id [32]byte) (*Escrow, bool, error)
}

// TransferPort dispatches asynchronous value transfers. The eventual outcome
// of a transfer is reported out-of-band and never re-applied to escrow
// state; an error from Transfer is a dispatch failure only.
type TransferPort interface {
	Transfer(to string, amount *big.Int, memo string) error
}

type noopBank struct{}

func (noopBank) Transfer(string, *big.Int, string) error { return nil }

// Engine owns the escrow lifecycle: it composes validated immutables and
// timelocks with the persisted mutable state and gates every transition
// through the timelock state machine. Calls are serialized so each operation
// executes as a single atomic unit against the backing store.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	emitter Emitter
	bank    TransferPort
	bounds  Bounds
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter and transfer port and the
// standard timelock bounds profile.
func NewEngine() *Engine {
	return &Engine{
		emitter: NoopEmitter{},
		bank:    noopBank{},
		bounds:  StandardBounds,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter Emitter) {
	if emitter == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetBank configures the transfer port. Passing nil resets it to a no-op.
func (e *Engine) SetBank(bank TransferPort) {
	if bank == nil {
		e.bank = noopBank{}
		return
	}
	e.bank = bank
}

// SetBounds selects the timelock bounds profile applied at creation.
func (e *Engine) SetBounds(bounds Bounds) { e.bounds = bounds }

// SetNowFunc overrides the time source used by the engine and by the
// timelocks of every escrow it loads. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

var errNilState = fmt.Errorf("htlc engine: state not configured")

func (e *Engine) loadEscrow(id [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if esc.Timelocks != nil {
		esc.Timelocks.SetNowFunc(e.nowFn)
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.EscrowPut(esc)
}

// transfer dispatches an asynchronous transfer after the state transition
// has been committed. A dispatch failure is flagged for reconciliation; it
// does not unwind the transition.
func (e *Engine) transfer(esc *Escrow, to string, amount *big.Int, memo string) {
	if err := e.bank.Transfer(to, amount, memo); err != nil {
		e.emit(NewTransferFailedEvent(esc, to, amount, err.Error()))
	}
}

// CreateParams carries the validated inputs for a new escrow.
type CreateParams struct {
	OrderHash          string
	Hashlock           string
	Maker              string
	TakerAddress       string
	Amount             *big.Int
	SafetyDeposit      *big.Int
	WithdrawalAt       int64
	PublicWithdrawalAt int64
	CancellationAt     int64
}

// Create validates the immutables and timelocks, checks the attached value
// against the required deposit and persists the new escrow.
func (e *Engine) Create(params CreateParams, depositor string, attachedValue *big.Int) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	immutables, err := NewImmutables(params.OrderHash, params.Hashlock, params.Maker, params.TakerAddress, params.Amount, params.SafetyDeposit)
	if err != nil {
		return nil, err
	}
	timelocks, err := NewTimelocksAt(e.now(), params.WithdrawalAt, params.PublicWithdrawalAt, params.CancellationAt, e.bounds)
	if err != nil {
		return nil, err
	}
	timelocks.SetNowFunc(e.nowFn)
	if strings.TrimSpace(depositor) == "" {
		return nil, fmt.Errorf("%w: depositor must not be empty", ErrInputValidation)
	}
	required := immutables.TotalRequired()
	if attachedValue == nil || attachedValue.Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: attached %s, required %s", ErrInsufficientDeposit, formatAmount(attachedValue), required)
	}
	id := immutables.ID()
	if _, ok, err := e.state.EscrowGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: escrow already exists for order hash %s", ErrInputValidation, immutables.OrderHash)
	}
	esc := &Escrow{
		Immutables:      immutables,
		Timelocks:       timelocks,
		DepositedAmount: new(big.Int).Set(attachedValue),
		Depositor:       strings.TrimSpace(depositor),
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc))
	return esc.Clone(), nil
}

func (e *Engine) withdraw(id [32]byte, secret string, stage Stage) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.IsWithdrawn || esc.IsCancelled {
		return fmt.Errorf("%w: escrow is %s", ErrAlreadyFinalized, esc.Status())
	}
	if !esc.Immutables.VerifySecret(secret) {
		return fmt.Errorf("%w: secret does not match hashlock", ErrInvalidSecret)
	}
	if err := esc.Timelocks.Require(stage); err != nil {
		return err
	}
	esc.IsWithdrawn = true
	esc.RevealedSecret = secret
	esc.SecretRevealed = true
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewWithdrawnEvent(esc))
	e.transfer(esc, esc.Immutables.Maker, esc.Immutables.Amount, "htlc withdraw")
	return nil
}

// Withdraw reveals the secret and settles the escrow in favour of the maker
// once the withdrawal timelock has passed. The terminal flag is committed
// before the transfer is dispatched.
func (e *Engine) Withdraw(id [32]byte, secret string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withdraw(id, secret, StageWithdrawal)
}

// PublicWithdraw is Withdraw gated on the public withdrawal stage; available
// only in the four-stage timelock variant.
func (e *Engine) PublicWithdraw(id [32]byte, secret string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withdraw(id, secret, StagePublicWithdrawal)
}

// Cancel returns the full deposited amount to the depositor once the
// cancellation timelock has passed.
func (e *Engine) Cancel(id [32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.IsWithdrawn || esc.IsCancelled {
		return fmt.Errorf("%w: escrow is %s", ErrAlreadyFinalized, esc.Status())
	}
	if err := esc.Timelocks.Require(StageCancellation); err != nil {
		return err
	}
	esc.IsCancelled = true
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(esc))
	e.transfer(esc, esc.Depositor, esc.DepositedAmount, "htlc cancel")
	return nil
}

// EmergencyRefund lets the depositor recover the deposited amount once the
// emergency threshold has passed. Matching the reference contract, this path
// does not gate on the terminal flags: the emitted event carries them so a
// refund issued after a withdrawal can be reconciled downstream.
func (e *Engine) EmergencyRefund(id [32]byte, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(caller) != esc.Depositor {
		return fmt.Errorf("%w: only the depositor may emergency refund", ErrUnauthorized)
	}
	if err := esc.Timelocks.Require(StageEmergency); err != nil {
		return err
	}
	e.emit(NewEmergencyRefundedEvent(esc))
	e.transfer(esc, esc.Depositor, esc.DepositedAmount, "htlc emergency refund")
	return nil
}

// Get returns a copy of the stored escrow.
func (e *Engine) Get(id [32]byte) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}
