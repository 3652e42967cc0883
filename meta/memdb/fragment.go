package memdb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tidwall/buntdb"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/meta"
)

func fragmentDataKey(id meta.ID) string { return idKey("fragment:data", id) }
func fragmentHashKey(hash cos.Cksum) string { return "fragment:by_hash:" + hash.String() }
func sequenceKey(compoundID meta.ID, index int) string {
	return fmt.Sprintf("seq:%020d:%010d", int64(compoundID), index)
}
func sequencePrefix(compoundID meta.ID) string { return fmt.Sprintf("seq:%020d:", int64(compoundID)) }

func getFragmentByID(tx *buntdb.Tx, id meta.ID) (*meta.Fragment, error) {
	raw, err := tx.Get(fragmentDataKey(id))
	if err == buntdb.ErrNotFound {
		return nil, &ferrors.FragmentMissing{}
	} else if err != nil {
		return nil, err
	}
	var f meta.Fragment
	if err := json.UnmarshalFromString(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func putFragment(tx *buntdb.Tx, f *meta.Fragment) error {
	raw, err := json.MarshalToString(f)
	if err != nil {
		return err
	}
	if _, _, err := tx.Set(fragmentDataKey(f.ID), raw, nil); err != nil {
		return err
	}
	if _, _, err := tx.Set(fragmentHashKey(f.Hash), strconv.FormatInt(int64(f.ID), 10), nil); err != nil {
		return err
	}
	return nil
}

func (s *Store) GetFragment(ctx context.Context, hash [32]byte) (*meta.Fragment, error) {
	var out *meta.Fragment
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		idStr, err := tx.Get(fragmentHashKey(cos.Cksum(hash)))
		if err == buntdb.ErrNotFound {
			return &ferrors.FragmentMissing{FragmentHash: hash}
		} else if err != nil {
			return err
		}
		id, _ := strconv.ParseInt(idStr, 10, 64)
		f, err := getFragmentByID(tx, meta.ID(id))
		if err != nil {
			return err
		}
		out = f
		return nil
	})
	return out, err
}

// MakeFragment gets-or-creates a fragment row by hash.
func (s *Store) MakeFragment(ctx context.Context, f *meta.Fragment) (meta.ID, error) {
	var id meta.ID
	err := s.withWrite(ctx, func(tx *buntdb.Tx) error {
		idStr, err := tx.Get(fragmentHashKey(f.Hash))
		if err == nil {
			n, _ := strconv.ParseInt(idStr, 10, 64)
			id = meta.ID(n)
			return nil
		} else if err != buntdb.ErrNotFound {
			return err
		}
		newID, err := nextID(tx, "fragment")
		if err != nil {
			return err
		}
		f.ID = newID
		id = newID
		return putFragment(tx, f)
	})
	return id, err
}

func putSequenceRow(tx *buntdb.Tx, row meta.CompoundFragment) error {
	_, _, err := tx.Set(sequenceKey(row.CompoundID, row.SequenceIndex), strconv.FormatInt(int64(row.FragmentID), 10), nil)
	return err
}

func clearSequence(tx *buntdb.Tx, compoundID meta.ID) error {
	var keys []string
	err := tx.AscendKeys(sequencePrefix(compoundID)+"*", func(key, value string) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
			return err
		}
	}
	return nil
}

func (s *Store) GetSequence(ctx context.Context, compoundID meta.ID) ([]meta.CompoundFragment, error) {
	var out []meta.CompoundFragment
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		return tx.AscendKeys(sequencePrefix(compoundID)+"*", func(key, value string) bool {
			var idx int
			fmt.Sscanf(key, sequencePrefix(compoundID)+"%d", &idx)
			fragID, _ := strconv.ParseInt(value, 10, 64)
			out = append(out, meta.CompoundFragment{
				CompoundID:    compoundID,
				FragmentID:    meta.ID(fragID),
				SequenceIndex: idx,
			})
			return true
		})
	})
	return out, err
}

func (s *Store) GetFragmentsByIDs(ctx context.Context, ids []meta.ID) ([]*meta.Fragment, error) {
	out := make([]*meta.Fragment, len(ids))
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		for i, id := range ids {
			f, err := getFragmentByID(tx, id)
			if err != nil {
				return err
			}
			out[i] = f
		}
		return nil
	})
	return out, err
}

func (s *Store) DeleteFragments(ctx context.Context, ids []meta.ID) error {
	return s.withWrite(ctx, func(tx *buntdb.Tx) error {
		for _, id := range ids {
			f, err := getFragmentByID(tx, id)
			if err != nil {
				return err
			}
			if _, err := tx.Delete(fragmentDataKey(id)); err != nil {
				return err
			}
			if _, err := tx.Delete(fragmentHashKey(f.Hash)); err != nil && err != buntdb.ErrNotFound {
				return err
			}
			if err := deleteFragmentResourceMapping(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetUnreferencedFragments returns fragments no compound's sequence
// mapping references, counting live and snapshot compounds alike.
func (s *Store) GetUnreferencedFragments(ctx context.Context, limit int) ([]*meta.Fragment, error) {
	var out []*meta.Fragment
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		referenced := make(map[meta.ID]bool)
		if err := tx.AscendKeys("seq:*", func(key, value string) bool {
			id, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				referenced[meta.ID(id)] = true
			}
			return true
		}); err != nil {
			return err
		}
		return tx.AscendKeys("fragment:data:*", func(key, value string) bool {
			var f meta.Fragment
			if err := json.UnmarshalFromString(value, &f); err != nil {
				return true
			}
			if !referenced[f.ID] {
				ff := f
				out = append(out, &ff)
				if limit > 0 && len(out) >= limit {
					return false
				}
			}
			return true
		})
	})
	return out, err
}

// GetFragmentsWithoutResourceMapping returns fragment rows that have no
// fragment–resource mapping, a corruption signal. A durable fragment row is normally created atomically with
// its mapping, so any hit here means the mapping was lost independently
// of the fragment row.
func (s *Store) GetFragmentsWithoutResourceMapping(ctx context.Context) ([]*meta.Fragment, error) {
	var out []*meta.Fragment
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		return tx.AscendKeys("fragment:data:*", func(key, value string) bool {
			var f meta.Fragment
			if err := json.UnmarshalFromString(value, &f); err != nil {
				return true
			}
			if _, err := tx.Get(fragmentResourceKey(f.ID)); err == buntdb.ErrNotFound {
				ff := f
				out = append(out, &ff)
			}
			return true
		})
	})
	return out, err
}
