package stock

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// Locker serializes mutations on a key across callers. Acquire blocks until
// the key is held or ctx is done; the returned release func is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// VariantLockKey is the lock key guarding one variant
func VariantLockKey(id uuid.UUID) string {
	return "stock:variant:" + id.String()
}

// TemplateLockKey is the lock key guarding the lines of one BMR template
func TemplateLockKey(templateID string) string {
	return "stock:bmr:" + templateID
}

// PartLockKey is the lock key guarding part creation and part-wide edits
func PartLockKey(partNo string) string {
	return "stock:part:" + partNo
}

type nopLocker struct{}

func (nopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// acquireAll takes the leading keys in the given order, then the variant keys
// sorted, so that concurrent callers cannot deadlock. Keys are released in
// reverse order.
func acquireAll(ctx context.Context, locker Locker, leading []string, variantIDs ...uuid.UUID) (func(), error) {
	keys := append([]string(nil), leading...)
	seen := make(map[uuid.UUID]struct{}, len(variantIDs))
	var variantKeys []string
	for _, id := range variantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		variantKeys = append(variantKeys, VariantLockKey(id))
	}
	sort.Strings(variantKeys)
	keys = append(keys, variantKeys...)

	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range keys {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
