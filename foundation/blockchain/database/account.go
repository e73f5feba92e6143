package database

import "sort"

// Accounts is the balance projection over a chain of blocks. It is rebuilt
// wholesale whenever the chain changes shape so the values can never drift
// from the blocks that back them.
type Accounts struct {
	balances map[string]int64
}

// NewAccounts constructs an empty projection.
func NewAccounts() *Accounts {
	return &Accounts{
		balances: make(map[string]int64),
	}
}

// Rebuild discards the projection and replays every block in order.
func (a *Accounts) Rebuild(chain []Block) {
	a.balances = make(map[string]int64)
	for _, b := range chain {
		a.ApplyBlock(b)
	}
}

// ApplyBlock folds one block's transactions into the projection. The
// sender is debited amount plus fee, the receiver credited the amount, and
// the sum of fees is credited to the block's miner.
func (a *Accounts) ApplyBlock(b Block) {
	var fees uint64

	for _, tx := range b.Transactions {
		if !tx.IsMint() {
			a.balances[tx.Sender] -= int64(tx.Amount) + int64(tx.Fee)
			fees += tx.Fee
		}
		a.balances[tx.Receiver] += int64(tx.Amount)
	}

	if fees > 0 && b.Miner != "" {
		a.balances[b.Miner] += int64(fees)
	}
}

// Balance returns the current balance for the specified address. Unknown
// addresses have a zero balance.
func (a *Accounts) Balance(address string) int64 {
	return a.balances[address]
}

// Copy returns the full set of non-zero balances.
func (a *Accounts) Copy() map[string]int64 {
	cpy := make(map[string]int64, len(a.balances))
	for addr, bal := range a.balances {
		if bal != 0 {
			cpy[addr] = bal
		}
	}

	return cpy
}

// CirculatingSupply sums every positive balance in the projection.
func (a *Accounts) CirculatingSupply() uint64 {
	var supply uint64
	for _, bal := range a.balances {
		if bal > 0 {
			supply += uint64(bal)
		}
	}

	return supply
}

// Addresses returns the sorted set of addresses with a non-zero balance.
func (a *Accounts) Addresses() []string {
	addrs := make([]string, 0, len(a.balances))
	for addr, bal := range a.balances {
		if bal != 0 {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)

	return addrs
}
