package escrowd

import (
	"log/slog"
	"math/big"
	"time"

	"github.com/Sahilgill24/x3Fusion/native/htlc"
	"github.com/Sahilgill24/x3Fusion/observability"
	"github.com/Sahilgill24/x3Fusion/settlement"
)

// Provisioner fronts escrow creation with a compensating refund: the deposit
// is considered received before validation runs, so a rejected creation must
// hand the attached value back to the depositor instead of swallowing it.
type Provisioner struct {
	engine *htlc.Engine
	bank   *settlement.Bank
	log    *slog.Logger
}

// NewProvisioner wires the creation path over the engine and settlement bank.
func NewProvisioner(engine *htlc.Engine, bank *settlement.Bank, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		engine: engine,
		bank:   bank,
		log:    logger.With(slog.String("component", "provisioner")),
	}
}

// Provision creates the escrow, refunding the attached value to the depositor
// when creation is rejected. The refund is dispatched asynchronously; its
// outcome is reported through the settlement receipts.
func (p *Provisioner) Provision(params htlc.CreateParams, depositor string, attachedValue *big.Int) (*htlc.Escrow, error) {
	start := time.Now()
	esc, err := p.engine.Create(params, depositor, attachedValue)
	if err != nil {
		observability.Metrics().Operation("create", "rejected", time.Since(start))
		p.refund(depositor, attachedValue, err)
		return nil, err
	}
	observability.Metrics().Operation("create", "accepted", time.Since(start))
	p.log.Info("escrow created",
		slog.String("order_hash", esc.Immutables.OrderHash),
		slog.String("deposited", esc.DepositedAmount.String()),
		slog.String("depositor", esc.Depositor))
	return esc, nil
}

func (p *Provisioner) refund(depositor string, attachedValue *big.Int, cause error) {
	if p.bank == nil || depositor == "" || attachedValue == nil || attachedValue.Sign() <= 0 {
		return
	}
	p.log.Warn("creation rejected, refunding attached deposit",
		slog.String("depositor", depositor),
		slog.String("amount", attachedValue.String()),
		slog.String("cause", cause.Error()))
	if err := p.bank.Transfer(depositor, attachedValue, "escrow creation refund"); err != nil {
		p.log.Error("refund dispatch failed",
			slog.String("depositor", depositor),
			slog.String("amount", attachedValue.String()),
			slog.String("error", err.Error()))
	}
}
