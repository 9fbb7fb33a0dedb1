package htlc

import (
	"encoding/hex"
	"math/big"
	"strconv"
)

// Event is the canonical payload handed to emitters for every state
// transition and dispatched transfer.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter receives escrow lifecycle events.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(event Event) { f(event) }

const (
	EventTypeCreated           = "htlc.created"
	EventTypeWithdrawn         = "htlc.withdrawn"
	EventTypeCancelled         = "htlc.cancelled"
	EventTypeEmergencyRefunded = "htlc.emergency_refunded"
	EventTypeTransferFailed    = "htlc.transfer_dispatch_failed"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newEscrowEvent(eventType string, esc *Escrow) Event {
	attrs := map[string]string{}
	if esc != nil {
		id := esc.ID()
		attrs["id"] = hex.EncodeToString(id[:])
		attrs["status"] = esc.Status()
		attrs["depositor"] = esc.Depositor
		attrs["depositedAmount"] = formatAmount(esc.DepositedAmount)
		if esc.Immutables != nil {
			attrs["maker"] = esc.Immutables.Maker
			attrs["amount"] = formatAmount(esc.Immutables.Amount)
			attrs["orderHash"] = esc.Immutables.OrderHash
		}
	}
	return Event{Type: eventType, Attributes: attrs}
}

// NewCreatedEvent returns the canonical payload for a newly created escrow.
func NewCreatedEvent(esc *Escrow) Event { return newEscrowEvent(EventTypeCreated, esc) }

// NewWithdrawnEvent returns the payload emitted after a successful secret
// reveal.
func NewWithdrawnEvent(esc *Escrow) Event { return newEscrowEvent(EventTypeWithdrawn, esc) }

// NewCancelledEvent returns the payload emitted when an escrow is cancelled.
func NewCancelledEvent(esc *Escrow) Event { return newEscrowEvent(EventTypeCancelled, esc) }

// NewEmergencyRefundedEvent returns the payload for an emergency refund. The
// terminal flags are included so downstream reconcilers can detect a refund
// issued after a withdrawal or cancellation: the emergency path itself does
// not gate on them.
func NewEmergencyRefundedEvent(esc *Escrow) Event {
	event := newEscrowEvent(EventTypeEmergencyRefunded, esc)
	if esc != nil {
		event.Attributes["wasWithdrawn"] = strconv.FormatBool(esc.IsWithdrawn)
		event.Attributes["wasCancelled"] = strconv.FormatBool(esc.IsCancelled)
	}
	return event
}

// NewTransferFailedEvent flags a transfer whose dispatch was rejected. The
// escrow state transition has already been committed at this point; the
// failure is surfaced for reconciliation, never re-applied to escrow state.
func NewTransferFailedEvent(esc *Escrow, to string, amount *big.Int, reason string) Event {
	event := newEscrowEvent(EventTypeTransferFailed, esc)
	event.Attributes["to"] = to
	event.Attributes["transferAmount"] = formatAmount(amount)
	event.Attributes["reason"] = reason
	return event
}
