package htlc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const (
	hashHexLen    = 64
	addressHexLen = 40
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Immutables captures the write-once parameters of a single swap leg. All hex
// fields are stored normalised (0x prefix, lowercase) and the amounts are
// guaranteed to fit an unsigned 128-bit range, including their sum. Instances
// are owned exclusively by the escrow that embeds them and never mutated
// after construction.
type Immutables struct {
	OrderHash     string
	Hashlock      string
	Maker         string
	TakerAddress  string
	Amount        *big.Int
	SafetyDeposit *big.Int
}

// NewImmutables validates and normalises the fixed swap parameters.
// Violations are reported as ErrInputValidation naming the offending field.
func NewImmutables(orderHash, hashlock, maker, takerAddress string, amount, safetyDeposit *big.Int) (*Immutables, error) {
	normalizedOrderHash, err := normalizeHexField("order_hash", orderHash, hashHexLen)
	if err != nil {
		return nil, err
	}
	normalizedHashlock, err := normalizeHexField("hashlock", hashlock, hashHexLen)
	if err != nil {
		return nil, err
	}
	normalizedTaker, err := normalizeHexField("taker_address", takerAddress, addressHexLen)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(maker) == "" {
		return nil, fmt.Errorf("%w: maker must not be empty", ErrInputValidation)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrInputValidation)
	}
	if safetyDeposit == nil {
		safetyDeposit = big.NewInt(0)
	}
	if safetyDeposit.Sign() < 0 {
		return nil, fmt.Errorf("%w: safety deposit must be non-negative", ErrInputValidation)
	}
	if amount.Cmp(maxUint128) > 0 {
		return nil, fmt.Errorf("%w: amount exceeds 128-bit range", ErrInputValidation)
	}
	if safetyDeposit.Cmp(maxUint128) > 0 {
		return nil, fmt.Errorf("%w: safety deposit exceeds 128-bit range", ErrInputValidation)
	}
	total := new(big.Int).Add(amount, safetyDeposit)
	if total.Cmp(maxUint128) > 0 {
		return nil, fmt.Errorf("%w: amount plus safety deposit overflows 128-bit range", ErrInputValidation)
	}
	return &Immutables{
		OrderHash:     normalizedOrderHash,
		Hashlock:      normalizedHashlock,
		Maker:         strings.TrimSpace(maker),
		TakerAddress:  normalizedTaker,
		Amount:        new(big.Int).Set(amount),
		SafetyDeposit: new(big.Int).Set(safetyDeposit),
	}, nil
}

// normalizeHexField strips an optional 0x prefix, enforces the exact hex
// length and returns the canonical 0x-prefixed lowercase form.
func normalizeHexField(field, value string, hexLen int) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrInputValidation, field)
	}
	cleaned := strings.TrimPrefix(trimmed, "0x")
	cleaned = strings.TrimPrefix(cleaned, "0X")
	if len(cleaned) != hexLen {
		return "", fmt.Errorf("%w: %s must be %d hex characters, got %d", ErrInputValidation, field, hexLen, len(cleaned))
	}
	if _, err := hex.DecodeString(cleaned); err != nil {
		return "", fmt.Errorf("%w: %s must contain only hex characters", ErrInputValidation, field)
	}
	return "0x" + strings.ToLower(cleaned), nil
}

// Clone returns a deep copy so callers can safely hold the result without
// aliasing the stored instance.
func (im *Immutables) Clone() *Immutables {
	if im == nil {
		return nil
	}
	clone := *im
	if im.Amount != nil {
		clone.Amount = new(big.Int).Set(im.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if im.SafetyDeposit != nil {
		clone.SafetyDeposit = new(big.Int).Set(im.SafetyDeposit)
	} else {
		clone.SafetyDeposit = big.NewInt(0)
	}
	return &clone
}

// TotalRequired returns amount + safety deposit. The constructor guarantees
// the sum fits the unsigned 128-bit range.
func (im *Immutables) TotalRequired() *big.Int {
	total := new(big.Int)
	if im == nil {
		return total
	}
	if im.Amount != nil {
		total.Add(total, im.Amount)
	}
	if im.SafetyDeposit != nil {
		total.Add(total, im.SafetyDeposit)
	}
	return total
}

// VerifySecret reports whether the sha256 digest of the secret matches the
// hashlock. sha256 is the single canonical hashlock digest; it must match
// the algorithm used to produce the commitment off-chain. Both sides are
// compared in the normalised 0x-prefixed lowercase form.
func (im *Immutables) VerifySecret(secret string) bool {
	if im == nil {
		return false
	}
	digest := sha256.Sum256([]byte(secret))
	computed := "0x" + hex.EncodeToString(digest[:])
	return strings.EqualFold(computed, im.Hashlock)
}

// ID returns the 32-byte escrow identifier derived from the validated order
// hash.
func (im *Immutables) ID() [32]byte {
	var id [32]byte
	if im == nil {
		return id
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(im.OrderHash, "0x"))
	if err != nil || len(decoded) != 32 {
		return id
	}
	copy(id[:], decoded)
	return id
}

// NormalizedOrderHash returns the order hash in canonical 0x form.
func (im *Immutables) NormalizedOrderHash() string { return im.OrderHash }

// NormalizedHashlock returns the hashlock in canonical 0x form.
func (im *Immutables) NormalizedHashlock() string { return im.Hashlock }

// NormalizedTakerAddress returns the counterpart-chain address in canonical
// 0x form.
func (im *Immutables) NormalizedTakerAddress() string { return im.TakerAddress }
