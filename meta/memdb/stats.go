package memdb

import (
	"context"
	"strconv"

	"github.com/tidwall/buntdb"

	"github.com/FlorianSauer/fragstore/meta"
)

func (s *Store) Stats(ctx context.Context) (meta.Stats, error) {
	var st meta.Stats
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		seenHash := make(map[[32]byte]bool)
		if err := tx.AscendKeys("compound:data:*", func(key, value string) bool {
			var c meta.Compound
			if err := json.UnmarshalFromString(value, &c); err != nil {
				return true
			}
			if !c.IsLive() {
				return true
			}
			st.CompoundCount++
			st.TotalCompoundSize += c.Size
			if !seenHash[c.Hash] {
				seenHash[c.Hash] = true
				st.UniqueCompoundCount++
			}
			return true
		}); err != nil {
			return err
		}

		fragSizes := make(map[meta.ID]int64)
		if err := tx.AscendKeys("fragment:data:*", func(key, value string) bool {
			var f meta.Fragment
			if err := json.UnmarshalFromString(value, &f); err != nil {
				return true
			}
			st.FragmentCount++
			st.TotalFragmentSize += f.Size
			fragSizes[f.ID] = f.Size
			return true
		}); err != nil {
			return err
		}

		if err := tx.AscendKeys("resource:data:*", func(key, value string) bool {
			var r meta.Resource
			if err := json.UnmarshalFromString(value, &r); err != nil {
				return true
			}
			st.ResourceCount++
			st.TotalResourceSize += r.Size
			return true
		}); err != nil {
			return err
		}

		refCount := make(map[meta.ID]int64)
		if err := tx.AscendKeys("seq:*", func(key, value string) bool {
			fragID, _ := strconv.ParseInt(value, 10, 64)
			refCount[meta.ID(fragID)]++
			return true
		}); err != nil {
			return err
		}
		for id, n := range refCount {
			if n > 1 {
				st.MultipleUsedCount += n - 1
				st.SavedBytes += fragSizes[id] * (n - 1)
			}
		}
		return nil
	})
	return st, err
}

// Wipe truncates every compound row and its sequence mapping. Fragments
// and resources are left for collectGarbage to reclaim.
func (s *Store) Wipe(ctx context.Context) error {
	return s.withWrite(ctx, func(tx *buntdb.Tx) error {
		var keys []string
		if err := tx.AscendKeys("compound:*", func(key, value string) bool {
			keys = append(keys, key)
			return true
		}); err != nil {
			return err
		}
		if err := tx.AscendKeys("seq:*", func(key, value string) bool {
			keys = append(keys, key)
			return true
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}
