package settlement

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBankSettlesTransfer(t *testing.T) {
	transport := NewLedgerTransport()
	bank := NewBank(transport, nil)

	require.NoError(t, bank.Transfer("maker.near", big.NewInt(500), "withdraw"))
	bank.Close()

	require.Zero(t, transport.Balance("maker.near").Cmp(big.NewInt(500)))
	receipts := bank.Receipts()
	require.Len(t, receipts, 1)
	require.Equal(t, StatusCompleted, receipts[0].Status)
	require.Equal(t, "withdraw", receipts[0].Memo)
}

func TestBankAccumulatesBalances(t *testing.T) {
	transport := NewLedgerTransport()
	bank := NewBank(transport, nil)

	require.NoError(t, bank.Transfer("maker.near", big.NewInt(200), "a"))
	require.NoError(t, bank.Transfer("maker.near", big.NewInt(300), "b"))
	bank.Close()

	require.Zero(t, transport.Balance("maker.near").Cmp(big.NewInt(500)))
}

func TestBankRejectsInvalidRequests(t *testing.T) {
	bank := NewBank(NewLedgerTransport(), nil)
	defer bank.Close()

	require.Error(t, bank.Transfer("", big.NewInt(1), "no recipient"))
	require.Error(t, bank.Transfer("maker.near", nil, "no amount"))
	require.Error(t, bank.Transfer("maker.near", big.NewInt(-1), "negative"))
}

func TestBankInvokesCompensatorOnFailure(t *testing.T) {
	transport := NewLedgerTransport()
	transport.FailWith(fmt.Errorf("rpc unreachable"))
	bank := NewBank(transport, nil)

	compensated := make(chan Receipt, 1)
	bank.SetCompensator(CompensatorFunc(func(r Receipt) { compensated <- r }))

	require.NoError(t, bank.Transfer("maker.near", big.NewInt(500), "withdraw"))

	select {
	case receipt := <-compensated:
		require.Equal(t, StatusFailed, receipt.Status)
		require.Equal(t, "rpc unreachable", receipt.Reason)
		require.Zero(t, receipt.Amount.Cmp(big.NewInt(500)))
	case <-time.After(5 * time.Second):
		t.Fatal("compensator was not invoked")
	}
	bank.Close()
}

func TestBankReceiptLookup(t *testing.T) {
	bank := NewBank(NewLedgerTransport(), nil)
	require.NoError(t, bank.Transfer("maker.near", big.NewInt(1), "memo"))
	bank.Close()

	receipts := bank.Receipts()
	require.Len(t, receipts, 1)
	receipt, ok := bank.Receipt(receipts[0].ID)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, receipt.Status)

	_, ok = bank.Receipt("unknown")
	require.False(t, ok)
}
