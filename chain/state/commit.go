package state

import (
	"github.com/crytic/medusa-geth/common"
)

// AccountChange is the net effect of executing a transaction or block on one account.
type AccountChange struct {
	Address common.Address

	// Account is the record of the account after execution.
	Account AccountRecord

	// Storage holds the slots written during execution.
	Storage map[common.Hash]common.Hash

	// Touched is false for accounts that were only read. Untouched changes are ignored.
	Touched bool

	// Created indicates the account was created during execution, so any storage it held before is gone.
	Created bool

	// SelfDestructed indicates the account was destroyed during execution.
	SelfDestructed bool
}

/*
Commit applies the changes produced by the execution engine to the overlay, in order. A self-destructed account is
reset to the default record and its storage wiped. A created account has its storage wiped before its new slots are
written. Every other touched account has its record replaced and its slots merged into what is already known.
*/
func (s *Store) Commit(changes []AccountChange) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, change := range changes {
		if !change.Touched {
			continue
		}
		if change.SelfDestructed {
			s.overlay.setAccount(change.Address, DefaultAccountRecord())
			s.overlay.clearStorage(change.Address)
			continue
		}
		if change.Created {
			s.overlay.clearStorage(change.Address)
		}
		s.overlay.setAccount(change.Address, change.Account)
		for slot, value := range change.Storage {
			s.overlay.setStorage(change.Address, slot, value)
		}
	}
}
