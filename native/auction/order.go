package auction

import (
	"encoding/hex"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Sahilgill24/x3Fusion/native/htlc"
)

// The auction package shares the escrow error taxonomy so adapters can
// classify failures from either component uniformly.
var (
	ErrInputValidation = htlc.ErrInputValidation
	ErrArithmetic      = htlc.ErrArithmetic
	ErrAuctionExpired  = htlc.ErrAuctionExpired
)

// NativeAsset is the maker-asset sentinel for the chain's native token.
const NativeAsset = "NEAR"

// Order describes one maker offer priced by the Dutch-auction curve. Orders
// are constructed by the caller per pricing or fill query; the fill ledger
// is the only persistent bookkeeping.
type Order struct {
	Salt         uint64
	Maker        string
	Receiver     string
	MakerAsset   string
	MakingAmount *big.Int
	FilledAmount *big.Int
}

// Hash returns the deterministic keccak256 content hash of the order,
// computed over the field-separated concatenation of salt, maker, maker
// asset and making amount. keccak256 is the canonical order digest; it is
// never used for hashlock verification.
func (o *Order) Hash() string {
	making := big.NewInt(0)
	if o != nil && o.MakingAmount != nil {
		making = o.MakingAmount
	}
	var salt uint64
	var maker, asset string
	if o != nil {
		salt = o.Salt
		maker = o.Maker
		asset = o.MakerAsset
	}
	data := fmt.Sprintf("%d:%s:%s:%s", salt, maker, asset, making)
	digest := ethcrypto.Keccak256([]byte(data))
	return hex.EncodeToString(digest)
}

// Remaining returns the unfilled portion of the order. A filled amount above
// the making amount violates the order invariant and is reported as
// ErrArithmetic.
func (o *Order) Remaining() (*big.Int, error) {
	if o == nil || o.MakingAmount == nil {
		return nil, fmt.Errorf("%w: order making amount required", ErrInputValidation)
	}
	filled := big.NewInt(0)
	if o.FilledAmount != nil {
		filled = o.FilledAmount
	}
	if filled.Sign() < 0 || o.MakingAmount.Sign() < 0 {
		return nil, fmt.Errorf("%w: order amounts must be non-negative", ErrInputValidation)
	}
	if filled.Cmp(o.MakingAmount) > 0 {
		return nil, fmt.Errorf("%w: filled amount %s exceeds making amount %s", ErrArithmetic, filled, o.MakingAmount)
	}
	return new(big.Int).Sub(o.MakingAmount, filled), nil
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.MakingAmount != nil {
		clone.MakingAmount = new(big.Int).Set(o.MakingAmount)
	}
	if o.FilledAmount != nil {
		clone.FilledAmount = new(big.Int).Set(o.FilledAmount)
	}
	return &clone
}
