package sandbox

import (
	"context"
	"fmt"
	"sync"

	"qinfinity/clockid"
	"qinfinity/ports"
)

type walletAccount struct {
	mu      sync.Mutex
	balance map[string]ports.Amount // currency -> balance
	nfts    []string
}

// WalletPort is an in-memory WalletPort keyed by identity, grounded on the
// teacher's per-account exclusive-lock pattern in native/bank (one mutex per
// account rather than one mutex for the whole ledger, so unrelated accounts
// never contend).
type WalletPort struct {
	mu       sync.RWMutex
	accounts map[string]*walletAccount
	ids      clockid.IdService
}

// NewWalletPort constructs an empty sandbox WalletPort.
func NewWalletPort(ids clockid.IdService) *WalletPort {
	return &WalletPort{
		accounts: make(map[string]*walletAccount),
		ids:      ids,
	}
}

func (w *WalletPort) account(identity string) *walletAccount {
	w.mu.RLock()
	acct, ok := w.accounts[identity]
	w.mu.RUnlock()
	if ok {
		return acct
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if acct, ok = w.accounts[identity]; ok {
		return acct
	}
	acct = &walletAccount{balance: make(map[string]ports.Amount)}
	w.accounts[identity] = acct
	return acct
}

// Seed credits identity's currency balance directly, bypassing transaction
// bookkeeping, for test and demo fixture setup.
func (w *WalletPort) Seed(identity string, amount ports.Amount, currency string) {
	acct := w.account(identity)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	current := acct.balance[currency]
	acct.balance[currency] = current.Add(amount)
}

// SeedNFT grants identity ownership of an NFT id, for test and demo fixture
// setup.
func (w *WalletPort) SeedNFT(identity, nftID string) {
	acct := w.account(identity)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	acct.nfts = append(acct.nfts, nftID)
}

// Balance implements ports.WalletPort.
func (w *WalletPort) Balance(_ context.Context, identity, currency string) (ports.Amount, error) {
	acct := w.account(identity)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance[currency], nil
}

// Debit implements ports.WalletPort. Each call mints a fresh transaction id;
// insufficient funds is reported as an error rather than allowing a negative
// balance.
func (w *WalletPort) Debit(ctx context.Context, identity string, amount ports.Amount, currency string) (string, error) {
	if !amount.IsValid() {
		return "", fmt.Errorf("sandbox wallet: invalid amount")
	}
	acct := w.account(identity)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	current := acct.balance[currency]
	if current.Cmp(amount) < 0 {
		return "", fmt.Errorf("sandbox wallet: insufficient %s balance for %q", currency, identity)
	}
	acct.balance[currency] = current.Sub(amount)
	return w.ids.NewID(), nil
}

// Credit implements ports.WalletPort.
func (w *WalletPort) Credit(ctx context.Context, identity string, amount ports.Amount, currency string) (string, error) {
	if !amount.IsValid() {
		return "", fmt.Errorf("sandbox wallet: invalid amount")
	}
	acct := w.account(identity)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	current := acct.balance[currency]
	acct.balance[currency] = current.Add(amount)
	return w.ids.NewID(), nil
}

// ListNFTs implements ports.WalletPort.
func (w *WalletPort) ListNFTs(_ context.Context, identity string) ([]string, error) {
	acct := w.account(identity)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return append([]string(nil), acct.nfts...), nil
}
