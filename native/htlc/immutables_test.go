package htlc

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"
)

const (
	testOrderHash = "0xabababababababababababababababababababababababababababababababab"
	testTaker     = "0xcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcd"
)

func hashlockFor(secret string) string {
	digest := sha256.Sum256([]byte(secret))
	return "0x" + hex.EncodeToString(digest[:])
}

func TestNewImmutablesNormalizesHexFields(t *testing.T) {
	upperHash := "0X" + strings.ToUpper(strings.TrimPrefix(testOrderHash, "0x"))
	bareTaker := strings.ToUpper(strings.TrimPrefix(testTaker, "0x"))
	im, err := NewImmutables(upperHash, hashlockFor("s"), "maker.near", bareTaker, big.NewInt(500), big.NewInt(100))
	if err != nil {
		t.Fatalf("NewImmutables: %v", err)
	}
	if im.OrderHash != testOrderHash {
		t.Errorf("order hash not normalised: %s", im.OrderHash)
	}
	if im.TakerAddress != testTaker {
		t.Errorf("taker address not normalised: %s", im.TakerAddress)
	}
	if !strings.HasPrefix(im.Hashlock, "0x") || im.Hashlock != strings.ToLower(im.Hashlock) {
		t.Errorf("hashlock not normalised: %s", im.Hashlock)
	}
}

func TestNewImmutablesRejectsMalformedInput(t *testing.T) {
	valid := func() (string, string, string, string, *big.Int, *big.Int) {
		return testOrderHash, hashlockFor("s"), "maker.near", testTaker, big.NewInt(500), big.NewInt(100)
	}
	overflow := new(big.Int).Lsh(big.NewInt(1), 128)
	nearMax := new(big.Int).Sub(overflow, big.NewInt(1))

	cases := []struct {
		name   string
		mutate func(orderHash, hashlock, maker, taker string, amount, deposit *big.Int) (string, string, string, string, *big.Int, *big.Int)
	}{
		{"short order hash", func(o, h, m, t string, a, d *big.Int) (string, string, string, string, *big.Int, *big.Int) {
			return "0xabcd", h, m, t, a, d
		}},
		{"non-hex hashlock", func(o, h, m, t string, a, d *big.Int) (string, string, string, string, *big.Int, *big.Int) {
			return o, "0x" + strings.Repeat("zz", 32), m, t, a, d
		}},
		{"empty maker", func(o, h, m, t string, a, d *big.Int) (string, string, string, string, *big.Int, *big.Int) {
			return o, h, "  ", t, a, d
		}},
		{"wrong taker length", func(o, h, m, t string, a, d *big.Int) (string, string, string, string, *big.Int, *big.Int) {
			return o, h, m, o, a, d
		}},
		{"zero amount", func(o, h, m, t string, a, d *big.Int) (string, string, string, string, *big.Int, *big.Int) {
			return o, h, m, t, big.NewInt(0), d
		}},
		{"negative deposit", func(o, h, m, t string, a, d *big.Int) (string, string, string, string, *big.Int, *big.Int) {
			return o, h, m, t, a, big.NewInt(-1)
		}},
		{"amount over 128 bits", func(o, h, m, t string, a, d *big.Int) (string, string, string, string, *big.Int, *big.Int) {
			return o, h, m, t, overflow, d
		}},
		{"sum over 128 bits", func(o, h, m, t string, a, d *big.Int) (string, string, string, string, *big.Int, *big.Int) {
			return o, h, m, t, nearMax, big.NewInt(1)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, h, m, tk, a, d := tc.mutate(valid())
			if _, err := NewImmutables(o, h, m, tk, a, d); !errors.Is(err, ErrInputValidation) {
				t.Fatalf("want ErrInputValidation, got %v", err)
			}
		})
	}
}

func TestNewImmutablesDefaultsNilDeposit(t *testing.T) {
	im, err := NewImmutables(testOrderHash, hashlockFor("s"), "maker.near", testTaker, big.NewInt(500), nil)
	if err != nil {
		t.Fatalf("NewImmutables: %v", err)
	}
	if im.SafetyDeposit.Sign() != 0 {
		t.Errorf("nil safety deposit should default to zero, got %s", im.SafetyDeposit)
	}
	if im.TotalRequired().Cmp(big.NewInt(500)) != 0 {
		t.Errorf("total required = %s, want 500", im.TotalRequired())
	}
}

func TestVerifySecret(t *testing.T) {
	im, err := NewImmutables(testOrderHash, hashlockFor("my-secret"), "maker.near", testTaker, big.NewInt(500), big.NewInt(100))
	if err != nil {
		t.Fatalf("NewImmutables: %v", err)
	}
	if !im.VerifySecret("my-secret") {
		t.Error("correct secret rejected")
	}
	if im.VerifySecret("my-secre") {
		t.Error("wrong secret accepted")
	}
	if im.VerifySecret("") {
		t.Error("empty secret accepted")
	}
}

func TestImmutablesIDMatchesOrderHash(t *testing.T) {
	im, err := NewImmutables(testOrderHash, hashlockFor("s"), "maker.near", testTaker, big.NewInt(500), nil)
	if err != nil {
		t.Fatalf("NewImmutables: %v", err)
	}
	id := im.ID()
	if got := "0x" + hex.EncodeToString(id[:]); got != testOrderHash {
		t.Errorf("id %s does not match order hash %s", got, testOrderHash)
	}
}

func TestImmutablesCloneDoesNotAlias(t *testing.T) {
	im, err := NewImmutables(testOrderHash, hashlockFor("s"), "maker.near", testTaker, big.NewInt(500), big.NewInt(100))
	if err != nil {
		t.Fatalf("NewImmutables: %v", err)
	}
	clone := im.Clone()
	clone.Amount.SetInt64(1)
	if im.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Error("mutating the clone changed the original amount")
	}
}
