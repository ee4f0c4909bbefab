package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainEntries(t *testing.T, walletID uuid.UUID, amounts []int64) []LedgerEntry {
	t.Helper()
	var entries []LedgerEntry
	prev := GenesisHash
	balance := int64(10_000)
	base := time.Now().UTC()
	for i, amt := range amounts {
		e := LedgerEntry{
			ID:            uuid.New(),
			TransactionID: uuid.New(),
			WalletID:      walletID,
			ActorType:     ActorSender,
			Amount:        amt,
			BalanceBefore: balance,
			BalanceAfter:  balance - amt,
			PrevHash:      prev,
			CreatedAt:     base.Add(time.Duration(i) * time.Millisecond),
		}
		e.Hash = e.ComputeHash()
		prev = e.Hash
		balance -= amt
		entries = append(entries, e)
	}
	return entries
}

func TestLedgerEntry_ComputeHash_Deterministic(t *testing.T) {
	e := LedgerEntry{
		TransactionID: uuid.New(),
		WalletID:      uuid.New(),
		Amount:        3000,
		BalanceBefore: 10000,
		BalanceAfter:  7000,
		PrevHash:      GenesisHash,
		CreatedAt:     time.Now().UTC(),
	}
	first := e.ComputeHash()
	assert.Equal(t, first, e.ComputeHash())
	assert.Len(t, first, 64) // hex sha256
}

func TestVerifyChain_Intact(t *testing.T) {
	entries := chainEntries(t, uuid.New(), []int64{100, 200, 300})
	assert.Nil(t, VerifyChain(entries))
}

func TestVerifyChain_SurvivesTimestampTruncation(t *testing.T) {
	// timestamptz keeps microseconds; an entry hashed with nanosecond
	// wall-clock precision must still verify after being read back.
	entries := chainEntries(t, uuid.New(), []int64{100, 200, 300})
	for i := range entries {
		entries[i].CreatedAt = entries[i].CreatedAt.Add(637 * time.Nanosecond)
	}
	prev := GenesisHash
	for i := range entries {
		entries[i].PrevHash = prev
		entries[i].Hash = entries[i].ComputeHash()
		prev = entries[i].Hash
	}

	for i := range entries {
		entries[i].CreatedAt = entries[i].CreatedAt.Truncate(time.Microsecond)
	}
	assert.Nil(t, VerifyChain(entries))
}

func TestVerifyChain_DetectsAmountTamper(t *testing.T) {
	entries := chainEntries(t, uuid.New(), []int64{100, 200, 300})
	entries[1].Amount = 999

	bad := VerifyChain(entries)
	require.NotNil(t, bad)
	assert.Equal(t, entries[1].ID, bad.ID)
}

func TestVerifyChain_DetectsBrokenLink(t *testing.T) {
	entries := chainEntries(t, uuid.New(), []int64{100, 200})
	entries[1].PrevHash = "forged"

	bad := VerifyChain(entries)
	require.NotNil(t, bad)
	assert.Equal(t, entries[1].ID, bad.ID)
}

func TestVerifyChain_Empty(t *testing.T) {
	assert.Nil(t, VerifyChain(nil))
}

func TestWallet_ChainHead(t *testing.T) {
	w := &Wallet{}
	assert.Equal(t, GenesisHash, w.ChainHead())

	head := "abc123"
	w.LastLedgerHash = &head
	assert.Equal(t, "abc123", w.ChainHead())
}

func TestWallet_CanDebit(t *testing.T) {
	w := &Wallet{Balance: 1000}
	assert.True(t, w.CanDebit(1000))
	assert.False(t, w.CanDebit(1001))
}

func TestTransaction_IsTerminal(t *testing.T) {
	cases := map[TransactionStatus]bool{
		TransactionStatusPending:     false,
		TransactionStatusQuarantined: false,
		TransactionStatusCompleted:   true,
		TransactionStatusFailed:      true,
		TransactionStatusRejected:    true,
	}
	for status, want := range cases {
		tx := &Transaction{Status: status}
		assert.Equal(t, want, tx.IsTerminal(), string(status))
	}
}

func TestFeeRule_Apply(t *testing.T) {
	fixed := &FeeRule{FeeType: FeeTypeFixed, FeeValue: decimal.NewFromInt(250)}
	assert.Equal(t, int64(250), fixed.Apply(100_000))

	pct := &FeeRule{FeeType: FeeTypePercentage, FeeValue: decimal.RequireFromString("0.015")}
	assert.Equal(t, int64(150), pct.Apply(10_000))

	// Rounds down, never over-charges.
	assert.Equal(t, int64(1), pct.Apply(99))
}

func TestDeriveIdempotencyKey_WindowBuckets(t *testing.T) {
	userID := uuid.New()
	now := time.Unix(1_000_000, 0)

	k1 := DeriveIdempotencyKey(userID, "transfer", 3000, "W2", 30, now)
	k2 := DeriveIdempotencyKey(userID, "transfer", 3000, "W2", 30, now.Add(5*time.Second))
	k3 := DeriveIdempotencyKey(userID, "transfer", 3000, "W2", 30, now.Add(40*time.Second))

	assert.Equal(t, k1, k2, "retries inside the window must collide")
	assert.NotEqual(t, k1, k3, "a later legitimate repeat must get a fresh key")

	// Different recipients never collide.
	k4 := DeriveIdempotencyKey(userID, "transfer", 3000, "W3", 30, now)
	assert.NotEqual(t, k1, k4)
}

func TestFraudEvaluation_Escalate(t *testing.T) {
	e := &FraudEvaluation{Severity: SeverityMedium}
	e.Escalate(SeverityLow)
	assert.Equal(t, SeverityMedium, e.Severity)
	e.Escalate(SeverityCritical)
	assert.Equal(t, SeverityCritical, e.Severity)
}

func TestQuarantinedTransaction_IsResolved(t *testing.T) {
	q := &QuarantinedTransaction{Status: QuarantineStatusPending}
	assert.False(t, q.IsResolved())
	q.Status = QuarantineStatusApproved
	assert.True(t, q.IsResolved())
}
