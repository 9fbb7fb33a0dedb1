package auction

import (
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
)

// Params describes one auction curve: the price decays linearly from
// StartPrice at StartTime to EndPrice at EndTime. Times are seconds since
// epoch as two explicit fields.
type Params struct {
	StartTime  int64
	EndTime    int64
	StartPrice *big.Int
	EndPrice   *big.Int
}

func (p Params) validate() error {
	if p.EndTime <= p.StartTime {
		return fmt.Errorf("%w: auction end time must be after start time", ErrInputValidation)
	}
	if err := validatePrice("start price", p.StartPrice); err != nil {
		return err
	}
	return validatePrice("end price", p.EndPrice)
}

func validatePrice(field string, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return fmt.Errorf("%w: %s must be non-negative", ErrInputValidation, field)
	}
	if v.BitLen() > 128 {
		return fmt.Errorf("%w: %s exceeds 128-bit range", ErrInputValidation, field)
	}
	return nil
}

// PriceInfo is the pricing snapshot returned for one order and curve.
type PriceInfo struct {
	CurrentPrice       *big.Int
	OrderHash          string
	TimeElapsedPercent int64
	IsActive           bool
}

// Fill records the outcome of one fill request against an order.
type Fill struct {
	OrderHash   string
	Amount      *big.Int
	Price       *big.Int
	FilledTotal *big.Int
	Timestamp   int64
}

// Pricer computes Dutch-auction prices and claimable fill amounts. It reads
// wall-clock time through an injectable source and keeps no order state of
// its own; the optional ledger persists per-order-hash fills.
type Pricer struct {
	ledger *Ledger
	nowFn  func() int64
}

// NewPricer creates a pricer without a fill ledger; FillOrder then relies on
// the caller-supplied filled amount alone.
func NewPricer() *Pricer {
	return &Pricer{nowFn: func() int64 { return time.Now().Unix() }}
}

// SetLedger attaches a persistent filled-amount ledger.
func (p *Pricer) SetLedger(ledger *Ledger) { p.ledger = ledger }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (p *Pricer) SetNowFunc(now func() int64) {
	if now == nil {
		p.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	p.nowFn = now
}

func (p *Pricer) now() int64 {
	if p == nil || p.nowFn == nil {
		return time.Now().Unix()
	}
	return p.nowFn()
}

// CalcPrice returns the curve price at the current time. The current time is
// clamped into [StartTime, EndTime]; between the bounds the price is the
// linear interpolation
//
//	(startPrice*(endTime-t) + endPrice*(t-startTime)) / (endTime-startTime)
//
// with a single truncating division applied after the products are summed.
// The 256-bit intermediates cannot overflow for 128-bit prices.
func (p *Pricer) CalcPrice(params Params) (*big.Int, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	now := p.now()
	if now <= params.StartTime {
		return new(big.Int).Set(params.StartPrice), nil
	}
	if now >= params.EndTime {
		return new(big.Int).Set(params.EndPrice), nil
	}
	startPrice, _ := uint256.FromBig(params.StartPrice)
	endPrice, _ := uint256.FromBig(params.EndPrice)
	remaining := uint256.NewInt(uint64(params.EndTime - now))
	elapsed := uint256.NewInt(uint64(now - params.StartTime))
	span := uint256.NewInt(uint64(params.EndTime - params.StartTime))

	sum := new(uint256.Int).Mul(startPrice, remaining)
	sum.Add(sum, new(uint256.Int).Mul(endPrice, elapsed))
	sum.Div(sum, span)
	return sum.ToBig(), nil
}

// GetMakingAmount returns how much of the order's unfilled remainder may be
// claimed for the supplied offchain amount at the current curve price. The
// result never exceeds the remainder; a zero price yields a zero claim.
func (p *Pricer) GetMakingAmount(order *Order, offchainAmount *big.Int, params Params) (*big.Int, error) {
	available, err := order.Remaining()
	if err != nil {
		return nil, err
	}
	if offchainAmount == nil || offchainAmount.Sign() < 0 {
		return nil, fmt.Errorf("%w: offchain amount must be non-negative", ErrInputValidation)
	}
	if offchainAmount.BitLen() > 128 {
		return nil, fmt.Errorf("%w: offchain amount exceeds 128-bit range", ErrInputValidation)
	}
	price, err := p.CalcPrice(params)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return big.NewInt(0), nil
	}
	availableWide, _ := uint256.FromBig(available)
	offchainWide, _ := uint256.FromBig(offchainAmount)
	priceWide, _ := uint256.FromBig(price)
	requested := new(uint256.Int).Mul(availableWide, offchainWide)
	requested.Div(requested, priceWide)
	result := requested.ToBig()
	if result.Cmp(available) > 0 {
		return available, nil
	}
	return result, nil
}

// GetPriceInfo reports the current price, order hash, elapsed-time percent
// and liveness for the supplied order and curve. A degenerate curve with
// EndTime <= StartTime reports 100 percent elapsed at the end price.
func (p *Pricer) GetPriceInfo(order *Order, params Params) (*PriceInfo, error) {
	now := p.now()
	if params.EndTime <= params.StartTime {
		if err := validatePrice("end price", params.EndPrice); err != nil {
			return nil, err
		}
		return &PriceInfo{
			CurrentPrice:       new(big.Int).Set(params.EndPrice),
			OrderHash:          order.Hash(),
			TimeElapsedPercent: 100,
			IsActive:           false,
		}, nil
	}
	price, err := p.CalcPrice(params)
	if err != nil {
		return nil, err
	}
	elapsed := (now - params.StartTime) * 100 / (params.EndTime - params.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > 100 {
		elapsed = 100
	}
	return &PriceInfo{
		CurrentPrice:       price,
		OrderHash:          order.Hash(),
		TimeElapsedPercent: elapsed,
		IsActive:           now < params.EndTime,
	}, nil
}

// RemainingAmount returns the unfilled portion of the order.
func (p *Pricer) RemainingAmount(order *Order) (*big.Int, error) {
	return order.Remaining()
}

// FillOrder computes the claimable amount for the request and advances the
// persistent fill ledger when one is attached. Fills are rejected once the
// auction has ended. When a ledger is attached its stored fill supersedes
// the caller-supplied filled amount.
func (p *Pricer) FillOrder(order *Order, offchainAmount *big.Int, params Params) (*Fill, error) {
	now := p.now()
	if params.EndTime <= params.StartTime {
		return nil, fmt.Errorf("%w: auction end time must be after start time", ErrInputValidation)
	}
	if now >= params.EndTime {
		return nil, fmt.Errorf("%w: auction ended at %d", ErrAuctionExpired, params.EndTime)
	}
	hash := order.Hash()
	effective := order
	if p.ledger != nil {
		stored, err := p.ledger.Filled(hash)
		if err != nil {
			return nil, err
		}
		effective = order.Clone()
		effective.FilledAmount = stored
	}
	claim, err := p.GetMakingAmount(effective, offchainAmount, params)
	if err != nil {
		return nil, err
	}
	price, err := p.CalcPrice(params)
	if err != nil {
		return nil, err
	}
	filled := big.NewInt(0)
	if effective.FilledAmount != nil {
		filled = effective.FilledAmount
	}
	total := new(big.Int).Add(filled, claim)
	if p.ledger != nil {
		if err := p.ledger.SetFilled(hash, total); err != nil {
			return nil, err
		}
	}
	return &Fill{
		OrderHash:   hash,
		Amount:      claim,
		Price:       price,
		FilledTotal: total,
		Timestamp:   now,
	}, nil
}
