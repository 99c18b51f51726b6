package services

import (
	"context"

	"moneyflow/internal/cache"
	"moneyflow/internal/core"
)

// lookupMemo caches account and category reads for the duration of one
// batch, keyed by (owner, id). Not-found results are cached too. Entries
// never expire; the memo is dropped with the batch.
type lookupMemo struct {
	refs       ReferenceReader
	accounts   *cache.LRUCache[cache.OwnedKey, lookupResult[core.Account]]
	categories *cache.LRUCache[cache.OwnedKey, lookupResult[core.Category]]
}

type lookupResult[T any] struct {
	val T
	err error
}

func newLookupMemo(refs ReferenceReader, size int) *lookupMemo {
	if size < 16 {
		size = 16
	}
	return &lookupMemo{
		refs:       refs,
		accounts:   cache.NewLRUCache[cache.OwnedKey, lookupResult[core.Account]](size, 0),
		categories: cache.NewLRUCache[cache.OwnedKey, lookupResult[core.Category]](size, 0),
	}
}

func (m *lookupMemo) account(ctx context.Context, ownerID, id int64) (core.Account, error) {
	return memoize(m.accounts, cache.OwnedKey{OwnerID: ownerID, ID: id}, func() (core.Account, error) {
		return m.refs.GetAccount(ctx, id)
	})
}

func (m *lookupMemo) category(ctx context.Context, ownerID, id int64) (core.Category, error) {
	return memoize(m.categories, cache.OwnedKey{OwnerID: ownerID, ID: id}, func() (core.Category, error) {
		return m.refs.GetCategory(ctx, id)
	})
}

// memoize loads key through c. A not-found error is a result and is kept;
// any other error is returned without being cached.
func memoize[T any](c *cache.LRUCache[cache.OwnedKey, lookupResult[T]], key cache.OwnedKey, load func() (T, error)) (T, error) {
	res, err := c.GetOrLoad(key, func() (lookupResult[T], error) {
		v, err := load()
		if err != nil && core.KindOf(err) != core.KindNotFound {
			return lookupResult[T]{}, err
		}
		return lookupResult[T]{val: v, err: err}, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.val, res.err
}

func (m *lookupMemo) stats() cache.Stats {
	a, c := m.accounts.Stats(), m.categories.Stats()
	return cache.Stats{
		Hits:      a.Hits + c.Hits,
		Misses:    a.Misses + c.Misses,
		Evictions: a.Evictions + c.Evictions,
	}
}
