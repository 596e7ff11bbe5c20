package state

import (
	"context"

	"github.com/crytic/medusa-geth/common"
	"golang.org/x/sync/errgroup"
)

/*
Prefetch resolves the provided accounts and storage slots concurrently so later reads are served without waiting on
the network. At most concurrency reads run at once; a value below one means no limit. The first failed read cancels
the remaining ones and is returned. Prefetch does nothing for a pure in-memory store.
*/
func (s *Store) Prefetch(ctx context.Context, addrs []common.Address, slots map[common.Address][]common.Hash, concurrency int) error {
	if s.backend == nil {
		return nil
	}

	group, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		group.SetLimit(concurrency)
	}

	for _, addr := range addrs {
		addr := addr
		group.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_, err := s.GetAccount(addr)
			return err
		})
	}
	for addr, keys := range slots {
		for _, slot := range keys {
			addr, slot := addr, slot
			group.Go(func() error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				_, err := s.GetStorage(addr, slot)
				return err
			})
		}
	}
	return group.Wait()
}
