package htlc

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
)

type mockState struct {
	escrows map[[32]byte]*Escrow
	putErr  error
}

func newMockState() *mockState {
	return &mockState{escrows: make(map[[32]byte]*Escrow)}
}

func (m *mockState) EscrowPut(esc *Escrow) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.escrows[esc.ID()] = esc.Clone()
	return nil
}

func (m *mockState) EscrowGet(id [32]byte) (*Escrow, bool, error) {
	esc, ok := m.escrows[id]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

type recordingEmitter struct {
	events []Event
}

func (r *recordingEmitter) Emit(event Event) { r.events = append(r.events, event) }

func (r *recordingEmitter) last() Event {
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

type transferCall struct {
	to     string
	amount *big.Int
	memo   string
}

type fakeBank struct {
	calls []transferCall
	err   error
}

func (f *fakeBank) Transfer(to string, amount *big.Int, memo string) error {
	f.calls = append(f.calls, transferCall{to: to, amount: new(big.Int).Set(amount), memo: memo})
	return f.err
}

type engineFixture struct {
	engine  *Engine
	state   *mockState
	emitter *recordingEmitter
	bank    *fakeBank
	clock   int64
}

const fixtureEpoch int64 = 1_700_000_000

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		state:   newMockState(),
		emitter: &recordingEmitter{},
		bank:    &fakeBank{},
		clock:   fixtureEpoch,
	}
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetBank(f.bank)
	f.engine.SetNowFunc(func() int64 { return f.clock })
	return f
}

func (f *engineFixture) createParams(secret string) CreateParams {
	return CreateParams{
		OrderHash:      testOrderHash,
		Hashlock:       hashlockFor(secret),
		Maker:          "maker.near",
		TakerAddress:   testTaker,
		Amount:         big.NewInt(500),
		SafetyDeposit:  big.NewInt(100),
		WithdrawalAt:   fixtureEpoch + 3600,
		CancellationAt: fixtureEpoch + 7200,
	}
}

func (f *engineFixture) mustCreate(t *testing.T, secret string) *Escrow {
	t.Helper()
	esc, err := f.engine.Create(f.createParams(secret), "taker.near", big.NewInt(600))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return esc
}

func TestCreateStoresEscrowAndEmits(t *testing.T) {
	f := newEngineFixture()
	esc := f.mustCreate(t, "s3cret")

	if esc.Status() != "active" {
		t.Errorf("status = %s, want active", esc.Status())
	}
	if esc.DepositedAmount.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("deposited = %s, want 600", esc.DepositedAmount)
	}
	if esc.Depositor != "taker.near" {
		t.Errorf("depositor = %s", esc.Depositor)
	}
	stored, err := f.engine.Get(esc.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Immutables.OrderHash != testOrderHash {
		t.Errorf("stored order hash = %s", stored.Immutables.OrderHash)
	}
	if got := f.emitter.last().Type; got != EventTypeCreated {
		t.Errorf("last event = %s, want %s", got, EventTypeCreated)
	}
	if len(f.bank.calls) != 0 {
		t.Errorf("create must not dispatch transfers, got %d", len(f.bank.calls))
	}
}

func TestCreateRejectsInsufficientDeposit(t *testing.T) {
	f := newEngineFixture()
	_, err := f.engine.Create(f.createParams("s"), "taker.near", big.NewInt(599))
	if !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("want ErrInsufficientDeposit, got %v", err)
	}
	if len(f.emitter.events) != 0 {
		t.Error("rejected create must not emit")
	}
}

func TestCreateRejectsDuplicateOrderHash(t *testing.T) {
	f := newEngineFixture()
	f.mustCreate(t, "s")
	_, err := f.engine.Create(f.createParams("s"), "other.near", big.NewInt(600))
	if !errors.Is(err, ErrInputValidation) {
		t.Fatalf("want ErrInputValidation for duplicate, got %v", err)
	}
}

func TestCreateRejectsEmptyDepositor(t *testing.T) {
	f := newEngineFixture()
	_, err := f.engine.Create(f.createParams("s"), "  ", big.NewInt(600))
	if !errors.Is(err, ErrInputValidation) {
		t.Fatalf("want ErrInputValidation, got %v", err)
	}
}

func TestWithdrawChecksSecretBeforeTimelock(t *testing.T) {
	f := newEngineFixture()
	esc := f.mustCreate(t, "s3cret")

	// Both gates closed: the secret check must win.
	if err := f.engine.Withdraw(esc.ID(), "wrong"); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("want ErrInvalidSecret, got %v", err)
	}
	if err := f.engine.Withdraw(esc.ID(), "s3cret"); !errors.Is(err, ErrTimelockNotMet) {
		t.Fatalf("want ErrTimelockNotMet, got %v", err)
	}
}

func TestWithdrawSettlesToMaker(t *testing.T) {
	f := newEngineFixture()
	esc := f.mustCreate(t, "s3cret")
	f.clock = fixtureEpoch + 3600

	if err := f.engine.Withdraw(esc.ID(), "s3cret"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	stored, err := f.engine.Get(esc.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.IsWithdrawn || stored.IsCancelled {
		t.Errorf("flags after withdraw: withdrawn=%v cancelled=%v", stored.IsWithdrawn, stored.IsCancelled)
	}
	if !stored.SecretRevealed || stored.RevealedSecret != "s3cret" {
		t.Errorf("revealed secret not recorded: %q", stored.RevealedSecret)
	}
	if len(f.bank.calls) != 1 {
		t.Fatalf("transfers = %d, want 1", len(f.bank.calls))
	}
	call := f.bank.calls[0]
	if call.to != "maker.near" || call.amount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("transfer %s to %s, want 500 to maker.near", call.amount, call.to)
	}
	if got := f.emitter.last().Type; got != EventTypeWithdrawn {
		t.Errorf("last event = %s, want %s", got, EventTypeWithdrawn)
	}
}

func TestWithdrawTwiceFailsAlreadyFinalized(t *testing.T) {
	f := newEngineFixture()
	esc := f.mustCreate(t, "s3cret")
	f.clock = fixtureEpoch + 3600

	if err := f.engine.Withdraw(esc.ID(), "s3cret"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if err := f.engine.Withdraw(esc.ID(), "s3cret"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("want ErrAlreadyFinalized, got %v", err)
	}
	if err := f.engine.Cancel(esc.ID()); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("Cancel after withdraw: want ErrAlreadyFinalized, got %v", err)
	}
}

func TestPublicWithdrawRequiresConfiguredStage(t *testing.T) {
	f := newEngineFixture()
	esc := f.mustCreate(t, "s3cret")
	f.clock = fixtureEpoch + 7000

	// Three-stage escrow: the public stage does not exist.
	if err := f.engine.PublicWithdraw(esc.ID(), "s3cret"); !errors.Is(err, ErrInputValidation) {
		t.Fatalf("want ErrInputValidation, got %v", err)
	}
}

func TestPublicWithdrawOpensAfterItsThreshold(t *testing.T) {
	f := newEngineFixture()
	params := f.createParams("s3cret")
	params.PublicWithdrawalAt = fixtureEpoch + 5000
	if _, err := f.engine.Create(params, "taker.near", big.NewInt(600)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	im, err := NewImmutables(params.OrderHash, params.Hashlock, params.Maker, params.TakerAddress, params.Amount, params.SafetyDeposit)
	if err != nil {
		t.Fatalf("NewImmutables: %v", err)
	}
	id := im.ID()

	f.clock = fixtureEpoch + 4000
	if err := f.engine.PublicWithdraw(id, "s3cret"); !errors.Is(err, ErrTimelockNotMet) {
		t.Fatalf("before threshold: want ErrTimelockNotMet, got %v", err)
	}
	f.clock = fixtureEpoch + 5000
	if err := f.engine.PublicWithdraw(id, "s3cret"); err != nil {
		t.Fatalf("PublicWithdraw: %v", err)
	}
}

func TestCancelReturnsFullDeposit(t *testing.T) {
	f := newEngineFixture()
	esc := f.mustCreate(t, "s3cret")

	if err := f.engine.Cancel(esc.ID()); !errors.Is(err, ErrTimelockNotMet) {
		t.Fatalf("before threshold: want ErrTimelockNotMet, got %v", err)
	}
	f.clock = fixtureEpoch + 7200
	if err := f.engine.Cancel(esc.ID()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	stored, err := f.engine.Get(esc.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.IsCancelled || stored.IsWithdrawn {
		t.Errorf("flags after cancel: withdrawn=%v cancelled=%v", stored.IsWithdrawn, stored.IsCancelled)
	}
	if len(f.bank.calls) != 1 {
		t.Fatalf("transfers = %d, want 1", len(f.bank.calls))
	}
	call := f.bank.calls[0]
	if call.to != "taker.near" || call.amount.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("transfer %s to %s, want 600 to taker.near", call.amount, call.to)
	}
}

func TestEmergencyRefundAuthorizationAndTiming(t *testing.T) {
	f := newEngineFixture()
	esc := f.mustCreate(t, "s3cret")
	f.clock = fixtureEpoch + 7200 + EmergencyDelay

	if err := f.engine.EmergencyRefund(esc.ID(), "mallory.near"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	f.clock = fixtureEpoch + 7200
	if err := f.engine.EmergencyRefund(esc.ID(), "taker.near"); !errors.Is(err, ErrTimelockNotMet) {
		t.Fatalf("before emergency threshold: want ErrTimelockNotMet, got %v", err)
	}
	f.clock = fixtureEpoch + 7200 + EmergencyDelay
	if err := f.engine.EmergencyRefund(esc.ID(), "taker.near"); err != nil {
		t.Fatalf("EmergencyRefund: %v", err)
	}
	if len(f.bank.calls) != 1 || f.bank.calls[0].to != "taker.near" {
		t.Fatalf("expected one refund to taker.near, got %+v", f.bank.calls)
	}
}

func TestEmergencyRefundIgnoresTerminalFlagsButFlagsThem(t *testing.T) {
	f := newEngineFixture()
	esc := f.mustCreate(t, "s3cret")
	f.clock = fixtureEpoch + 3600
	if err := f.engine.Withdraw(esc.ID(), "s3cret"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	f.clock = fixtureEpoch + 7200 + EmergencyDelay
	if err := f.engine.EmergencyRefund(esc.ID(), "taker.near"); err != nil {
		t.Fatalf("EmergencyRefund after withdraw: %v", err)
	}
	event := f.emitter.last()
	if event.Type != EventTypeEmergencyRefunded {
		t.Fatalf("last event = %s, want %s", event.Type, EventTypeEmergencyRefunded)
	}
	if event.Attributes["wasWithdrawn"] != "true" {
		t.Errorf("event must flag the prior withdrawal: %v", event.Attributes)
	}
	stored, err := f.engine.Get(esc.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.IsWithdrawn {
		t.Error("emergency refund must not rewrite terminal state")
	}
}

func TestTransferDispatchFailureDoesNotUnwindState(t *testing.T) {
	f := newEngineFixture()
	esc := f.mustCreate(t, "s3cret")
	f.bank.err = fmt.Errorf("transport offline")
	f.clock = fixtureEpoch + 3600

	if err := f.engine.Withdraw(esc.ID(), "s3cret"); err != nil {
		t.Fatalf("Withdraw must succeed despite dispatch failure: %v", err)
	}
	stored, err := f.engine.Get(esc.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.IsWithdrawn {
		t.Error("committed state must survive a dispatch failure")
	}
	event := f.emitter.last()
	if event.Type != EventTypeTransferFailed {
		t.Fatalf("last event = %s, want %s", event.Type, EventTypeTransferFailed)
	}
	if event.Attributes["reason"] != "transport offline" {
		t.Errorf("failure reason missing: %v", event.Attributes)
	}
}

func TestGetUnknownEscrow(t *testing.T) {
	f := newEngineFixture()
	if _, err := f.engine.Get([32]byte{1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
