package settlement

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sahilgill24/x3Fusion/observability"
)

// Transfer statuses recorded for every dispatched request.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Request describes one value transfer handed to the transport.
type Request struct {
	ID     string
	To     string
	Amount *big.Int
	Memo   string
}

// Receipt records the out-of-band outcome of a dispatched transfer.
type Receipt struct {
	ID          string
	To          string
	Amount      *big.Int
	Memo        string
	Status      string
	Reason      string
	CompletedAt int64
}

// Transport performs the actual value movement. Implementations may talk to
// a chain RPC or settle in process.
type Transport interface {
	Send(to string, amount *big.Int, memo string) error
}

// Compensator handles transfers that ultimately fail after their state
// transition was committed. It is the explicit compensating action for the
// optimistic-update boundary; it must not touch escrow state directly.
type Compensator interface {
	Compensate(receipt Receipt)
}

// CompensatorFunc adapts a function to the Compensator interface.
type CompensatorFunc func(Receipt)

func (f CompensatorFunc) Compensate(r Receipt) { f(r) }

const defaultQueueCapacity = 256

// Bank dispatches transfers asynchronously relative to the caller: Transfer
// enqueues the request and returns, a background worker settles it through
// the transport and records the receipt. Callers observe outcomes only
// through receipts, logs and metrics, never as a return value.
type Bank struct {
	transport   Transport
	log         *slog.Logger
	compensator Compensator

	mu       sync.Mutex
	receipts map[string]Receipt

	queue chan Request
	wg    sync.WaitGroup
	once  sync.Once
}

// NewBank constructs a bank over the given transport and starts its
// dispatch worker.
func NewBank(transport Transport, logger *slog.Logger) *Bank {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bank{
		transport: transport,
		log:       logger.With(slog.String("component", "settlement")),
		receipts:  make(map[string]Receipt),
		queue:     make(chan Request, defaultQueueCapacity),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// SetCompensator installs the handler invoked for failed transfers.
func (b *Bank) SetCompensator(c Compensator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compensator = c
}

// Transfer enqueues an asynchronous transfer. An error here is a dispatch
// failure (invalid request or saturated queue); the transfer's eventual
// success or failure is reported through its receipt.
func (b *Bank) Transfer(to string, amount *big.Int, memo string) error {
	if b == nil || b.transport == nil {
		return fmt.Errorf("settlement: transport not configured")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("settlement: recipient required")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("settlement: amount must be non-negative")
	}
	req := Request{
		ID:     uuid.NewString(),
		To:     strings.TrimSpace(to),
		Amount: new(big.Int).Set(amount),
		Memo:   memo,
	}
	b.record(Receipt{ID: req.ID, To: req.To, Amount: req.Amount, Memo: req.Memo, Status: StatusPending})
	select {
	case b.queue <- req:
		return nil
	default:
		b.complete(req, fmt.Errorf("dispatch queue saturated"))
		return fmt.Errorf("settlement: dispatch queue saturated")
	}
}

func (b *Bank) run() {
	defer b.wg.Done()
	for req := range b.queue {
		b.complete(req, b.transport.Send(req.To, req.Amount, req.Memo))
	}
}

func (b *Bank) complete(req Request, err error) {
	receipt := Receipt{
		ID:          req.ID,
		To:          req.To,
		Amount:      req.Amount,
		Memo:        req.Memo,
		Status:      StatusCompleted,
		CompletedAt: time.Now().Unix(),
	}
	if err != nil {
		receipt.Status = StatusFailed
		receipt.Reason = err.Error()
	}
	b.record(receipt)
	observability.Metrics().TransferSettled(receipt.Status)
	if err != nil {
		b.log.Error("transfer failed",
			slog.String("transfer_id", receipt.ID),
			slog.String("to", receipt.To),
			slog.String("amount", receipt.Amount.String()),
			slog.String("reason", receipt.Reason))
		b.mu.Lock()
		comp := b.compensator
		b.mu.Unlock()
		if comp != nil {
			comp.Compensate(receipt)
		}
		return
	}
	b.log.Info("transfer settled",
		slog.String("transfer_id", receipt.ID),
		slog.String("to", receipt.To),
		slog.String("amount", receipt.Amount.String()))
}

func (b *Bank) record(receipt Receipt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts[receipt.ID] = receipt
}

// Receipt returns the recorded outcome for a transfer ID.
func (b *Bank) Receipt(id string) (Receipt, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt, ok := b.receipts[id]
	return receipt, ok
}

// Receipts returns a snapshot of all recorded receipts.
func (b *Bank) Receipts() []Receipt {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Receipt, 0, len(b.receipts))
	for _, r := range b.receipts {
		out = append(out, r)
	}
	return out
}

// Close stops the dispatch worker after draining queued requests.
func (b *Bank) Close() {
	b.once.Do(func() { close(b.queue) })
	b.wg.Wait()
}
