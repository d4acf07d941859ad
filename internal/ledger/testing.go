package ledger

// SeedBalance is a test helper that overwrites the balance of a wallet held by the in-memory ledger.
func SeedBalance(l Ledger, id int64, amount int64) {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return
	}
	mem.mu.RLock()
	acc, exists := mem.accounts[id]
	mem.mu.RUnlock()
	if !exists {
		return
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.wallet.Balance = amount
}

// SetStatus is a test helper that changes the status of a wallet held by the in-memory ledger.
func SetStatus(l Ledger, id int64, status Status) {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return
	}
	mem.mu.RLock()
	acc, exists := mem.accounts[id]
	mem.mu.RUnlock()
	if !exists {
		return
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.wallet.Status = status
}
