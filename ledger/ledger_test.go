package ledger

import (
	"errors"
	"testing"
)

// MockWallet is a test double for the Wallet interface.
type MockWallet struct {
	balance int
	calls   int
	fail    bool
}

func (m *MockWallet) RequestBalanceDelta(playerID string, delta int) (int, error) {
	m.calls++
	if m.fail {
		return m.balance, errors.New("wallet unavailable")
	}
	m.balance += delta
	return m.balance, nil
}

func (m *MockWallet) VerifyIdentity(playerID string) (bool, error) {
	return true, nil
}

func TestLedger_StakeRoundTrip(t *testing.T) {
	wallet := &MockWallet{balance: 100}
	l := New(wallet, "p1", 30)

	l.PayStake()
	if wallet.balance != 70 {
		t.Fatalf("Expected balance 70 after stake, got %d", wallet.balance)
	}

	l.Settle(OutcomeDraw)
	if wallet.balance != 100 {
		t.Errorf("Expected refund to 100 on draw, got %d", wallet.balance)
	}
}

func TestLedger_WinPaysDoubleStake(t *testing.T) {
	wallet := &MockWallet{balance: 100}
	l := New(wallet, "p1", 30)

	l.PayStake()
	l.Settle(OutcomeWon)
	if wallet.balance != 130 {
		t.Errorf("Expected balance 130 after win, got %d", wallet.balance)
	}
}

func TestLedger_LossCreditsNothing(t *testing.T) {
	wallet := &MockWallet{balance: 100}
	l := New(wallet, "p1", 30)

	l.PayStake()
	l.Settle(OutcomeLost)
	if wallet.balance != 70 {
		t.Errorf("Expected balance 70 after loss, got %d", wallet.balance)
	}
	if !l.Settled() {
		t.Error("A loss must still consume the round's settlement")
	}
}

func TestLedger_PayoutFiresOnce(t *testing.T) {
	wallet := &MockWallet{balance: 100}
	l := New(wallet, "p1", 30)

	l.PayStake()
	l.Settle(OutcomeWon)
	l.Settle(OutcomeWon)
	l.Settle(OutcomeWon)

	if wallet.balance != 130 {
		t.Errorf("Expected a single credit (130), got %d", wallet.balance)
	}
	if wallet.calls != 2 {
		t.Errorf("Expected 2 wallet calls (debit + credit), got %d", wallet.calls)
	}
}

func TestLedger_StakePaidOnce(t *testing.T) {
	wallet := &MockWallet{balance: 100}
	l := New(wallet, "p1", 30)

	l.PayStake()
	l.PayStake()
	if wallet.balance != 70 {
		t.Errorf("Expected a single debit (70), got %d", wallet.balance)
	}
}

func TestLedger_NoSettlementWithoutStake(t *testing.T) {
	wallet := &MockWallet{balance: 100}
	l := New(wallet, "p1", 0)

	l.PayStake()
	l.Settle(OutcomeWon)
	if wallet.calls != 0 {
		t.Errorf("Zero stake should never touch the wallet, got %d calls", wallet.calls)
	}
}

func TestLedger_ResetReArms(t *testing.T) {
	wallet := &MockWallet{balance: 100}
	l := New(wallet, "p1", 10)

	l.PayStake()
	l.Settle(OutcomeWon) // 100 -> 90 -> 110
	l.Reset()
	l.PayStake()
	l.Settle(OutcomeDraw) // 110 -> 100 -> 110

	if wallet.balance != 110 {
		t.Errorf("Expected balance 110 after two rounds, got %d", wallet.balance)
	}
}

func TestLedger_WalletFailureIsNonFatal(t *testing.T) {
	wallet := &MockWallet{balance: 100, fail: true}
	l := New(wallet, "p1", 30)

	l.PayStake()
	l.Settle(OutcomeWon)

	// The round still resolved; the guards consumed both operations.
	if !l.Settled() {
		t.Error("Failed wallet calls must not leave the round unsettled")
	}
	l.Settle(OutcomeWon)
	if wallet.calls != 2 {
		t.Errorf("Guards must hold even when the wallet fails, got %d calls", wallet.calls)
	}
}

func TestLedger_SetStakeIgnoredOncePaid(t *testing.T) {
	wallet := &MockWallet{balance: 100}
	l := New(wallet, "p1", 10)

	l.PayStake()
	l.SetStake(50)
	l.Settle(OutcomeDraw)

	if wallet.balance != 100 {
		t.Errorf("Refund must use the paid stake, got balance %d", wallet.balance)
	}
}
