package memdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/meta"
)

func resourceDataKey(id meta.ID) string    { return idKey("resource:data", id) }
func resourceHashKey(hash cos.Cksum) string { return "resource:by_hash:" + hash.String() }
func resourceNameKey(name string) string    { return "resource:by_name:" + name }
func fragmentResourceKey(fragmentID meta.ID) string { return idKey("fragres:data", fragmentID) }
func fragresByResourcePrefix(resourceID meta.ID) string {
	return fmt.Sprintf("fragres:by_resource:%020d:", int64(resourceID))
}
func fragresByResourceKey(resourceID, fragmentID meta.ID) string {
	return fmt.Sprintf("%s%020d", fragresByResourcePrefix(resourceID), int64(fragmentID))
}

func getResourceByID(tx *buntdb.Tx, id meta.ID) (*meta.Resource, error) {
	raw, err := tx.Get(resourceDataKey(id))
	if err == buntdb.ErrNotFound {
		return nil, &ferrors.ResourceMissing{}
	} else if err != nil {
		return nil, err
	}
	var r meta.Resource
	if err := json.UnmarshalFromString(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func putResource(tx *buntdb.Tx, r *meta.Resource) error {
	raw, err := json.MarshalToString(r)
	if err != nil {
		return err
	}
	if _, _, err := tx.Set(resourceDataKey(r.ID), raw, nil); err != nil {
		return err
	}
	if _, _, err := tx.Set(resourceHashKey(r.Hash), strconv.FormatInt(int64(r.ID), 10), nil); err != nil {
		return err
	}
	if _, _, err := tx.Set(resourceNameKey(r.Name), strconv.FormatInt(int64(r.ID), 10), nil); err != nil {
		return err
	}
	return nil
}

func (s *Store) MakeResource(ctx context.Context, r *meta.Resource) (meta.ID, error) {
	var id meta.ID
	err := s.withWrite(ctx, func(tx *buntdb.Tx) error {
		newID, err := nextID(tx, "resource")
		if err != nil {
			return err
		}
		r.ID = newID
		id = newID
		return putResource(tx, r)
	})
	return id, err
}

func (s *Store) GetResourceByHash(ctx context.Context, hash [32]byte) (*meta.Resource, error) {
	var out *meta.Resource
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		idStr, err := tx.Get(resourceHashKey(cos.Cksum(hash)))
		if err == buntdb.ErrNotFound {
			return &ferrors.ResourceMissing{}
		} else if err != nil {
			return err
		}
		id, _ := strconv.ParseInt(idStr, 10, 64)
		r, err := getResourceByID(tx, meta.ID(id))
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (s *Store) GetResource(ctx context.Context, id meta.ID) (*meta.Resource, error) {
	var out *meta.Resource
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		r, err := getResourceByID(tx, id)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (s *Store) DeleteResource(ctx context.Context, id meta.ID) error {
	return s.withWrite(ctx, func(tx *buntdb.Tx) error {
		r, err := getResourceByID(tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Delete(resourceDataKey(id)); err != nil {
			return err
		}
		if _, err := tx.Delete(resourceHashKey(r.Hash)); err != nil && err != buntdb.ErrNotFound {
			return err
		}
		if _, err := tx.Delete(resourceNameKey(r.Name)); err != nil && err != buntdb.ErrNotFound {
			return err
		}
		return nil
	})
}

func (s *Store) ListResources(ctx context.Context) ([]*meta.Resource, error) {
	var out []*meta.Resource
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		return tx.AscendKeys("resource:data:*", func(key, value string) bool {
			var r meta.Resource
			if err := json.UnmarshalFromString(value, &r); err != nil {
				return true
			}
			rr := r
			out = append(out, &rr)
			return true
		})
	})
	return out, err
}

func deleteFragmentResourceMapping(tx *buntdb.Tx, fragmentID meta.ID) error {
	raw, err := tx.Get(fragmentResourceKey(fragmentID))
	if err == buntdb.ErrNotFound {
		return nil
	} else if err != nil {
		return err
	}
	var fr meta.FragmentResource
	if err := json.UnmarshalFromString(raw, &fr); err != nil {
		return err
	}
	if _, err := tx.Delete(fragmentResourceKey(fragmentID)); err != nil {
		return err
	}
	if _, err := tx.Delete(fragresByResourceKey(fr.ResourceID, fragmentID)); err != nil && err != buntdb.ErrNotFound {
		return err
	}
	return nil
}

func putFragmentResourceMapping(tx *buntdb.Tx, fr meta.FragmentResource) error {
	raw, err := json.MarshalToString(fr)
	if err != nil {
		return err
	}
	if _, _, err := tx.Set(fragmentResourceKey(fr.FragmentID), raw, nil); err != nil {
		return err
	}
	offsetStr := strconv.FormatInt(fr.FragmentOffset, 10)
	_, _, err = tx.Set(fragresByResourceKey(fr.ResourceID, fr.FragmentID), offsetStr, nil)
	return err
}

// MakeAndMapFragmentsToResource atomically get-or-creates each fragment
// row and (re)points its fragment-resource mapping at resourceID, each at
// offsets[i].
func (s *Store) MakeAndMapFragmentsToResource(ctx context.Context, resourceID meta.ID, frags []meta.Fragment, offsets []int64) error {
	if len(frags) != len(offsets) {
		return fmt.Errorf("memdb: %d fragments but %d offsets", len(frags), len(offsets))
	}
	return s.withWrite(ctx, func(tx *buntdb.Tx) error {
		for i := range frags {
			f := frags[i]
			idStr, err := tx.Get(fragmentHashKey(f.Hash))
			var fragID meta.ID
			if err == buntdb.ErrNotFound {
				newID, err := nextID(tx, "fragment")
				if err != nil {
					return err
				}
				f.ID = newID
				if err := putFragment(tx, &f); err != nil {
					return err
				}
				fragID = newID
			} else if err != nil {
				return err
			} else {
				n, _ := strconv.ParseInt(idStr, 10, 64)
				fragID = meta.ID(n)
			}
			if err := deleteFragmentResourceMapping(tx, fragID); err != nil {
				return err
			}
			if err := putFragmentResourceMapping(tx, meta.FragmentResource{
				FragmentID:     fragID,
				ResourceID:     resourceID,
				FragmentOffset: offsets[i],
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetFragmentResource(ctx context.Context, fragmentID meta.ID) (*meta.FragmentResource, error) {
	var out *meta.FragmentResource
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		raw, err := tx.Get(fragmentResourceKey(fragmentID))
		if err == buntdb.ErrNotFound {
			return &ferrors.FragmentMissing{}
		} else if err != nil {
			return err
		}
		var fr meta.FragmentResource
		if err := json.UnmarshalFromString(raw, &fr); err != nil {
			return err
		}
		out = &fr
		return nil
	})
	return out, err
}

func (s *Store) GetFragmentsWithOffsetOnResource(ctx context.Context, resourceID meta.ID) ([]meta.FragmentResource, error) {
	var out []meta.FragmentResource
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		prefix := fragresByResourcePrefix(resourceID)
		return tx.AscendKeys(prefix+"*", func(key, value string) bool {
			idStr := strings.TrimPrefix(key, prefix)
			fragID, _ := strconv.ParseInt(idStr, 10, 64)
			offset, _ := strconv.ParseInt(value, 10, 64)
			out = append(out, meta.FragmentResource{
				FragmentID:     meta.ID(fragID),
				ResourceID:     resourceID,
				FragmentOffset: offset,
			})
			return true
		})
	})
	return out, err
}

// MoveFragmentMappings repoints every fragment mapped to oldResourceID at
// newResourceID, preserving offsets.
func (s *Store) MoveFragmentMappings(ctx context.Context, oldResourceID, newResourceID meta.ID) error {
	return s.withWrite(ctx, func(tx *buntdb.Tx) error {
		prefix := fragresByResourcePrefix(oldResourceID)
		var rows []meta.FragmentResource
		err := tx.AscendKeys(prefix+"*", func(key, value string) bool {
			idStr := strings.TrimPrefix(key, prefix)
			fragID, _ := strconv.ParseInt(idStr, 10, 64)
			offset, _ := strconv.ParseInt(value, 10, 64)
			rows = append(rows, meta.FragmentResource{FragmentID: meta.ID(fragID), FragmentOffset: offset})
			return true
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := deleteFragmentResourceMapping(tx, row.FragmentID); err != nil {
				return err
			}
			if err := putFragmentResourceMapping(tx, meta.FragmentResource{
				FragmentID:     row.FragmentID,
				ResourceID:     newResourceID,
				FragmentOffset: row.FragmentOffset,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetUnreferencedResources(ctx context.Context) ([]*meta.Resource, error) {
	var out []*meta.Resource
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		return tx.AscendKeys("resource:data:*", func(key, value string) bool {
			var r meta.Resource
			if err := json.UnmarshalFromString(value, &r); err != nil {
				return true
			}
			referenced := false
			_ = tx.AscendKeys(fragresByResourcePrefix(r.ID)+"*", func(k2, v2 string) bool {
				referenced = true
				return false
			})
			if !referenced {
				rr := r
				out = append(out, &rr)
			}
			return true
		})
	})
	return out, err
}

func (s *Store) GetResourceWithReferencedFragmentSize(ctx context.Context) (map[meta.ID]int64, error) {
	out := make(map[meta.ID]int64)
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		return tx.AscendKeys("fragres:by_resource:*", func(key, value string) bool {
			parts := strings.Split(key, ":")
			resID, _ := strconv.ParseInt(parts[2], 10, 64)
			fragID, _ := strconv.ParseInt(parts[3], 10, 64)
			f, err := getFragmentByID(tx, meta.ID(fragID))
			if err != nil {
				return true
			}
			out[meta.ID(resID)] += f.Size
			return true
		})
	})
	return out, err
}

func (s *Store) GetAllFragmentsSortedByCompoundUsage(ctx context.Context) ([]*meta.Fragment, error) {
	var out []*meta.Fragment
	seen := make(map[meta.ID]bool)
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		var compoundIDs []meta.ID
		if err := tx.AscendKeys("compound:data:*", func(key, value string) bool {
			var c meta.Compound
			if err := json.UnmarshalFromString(value, &c); err == nil {
				compoundIDs = append(compoundIDs, c.ID)
			}
			return true
		}); err != nil {
			return err
		}
		for _, cid := range compoundIDs {
			prefix := sequencePrefix(cid)
			if err := tx.AscendKeys(prefix+"*", func(key, value string) bool {
				fragID, _ := strconv.ParseInt(value, 10, 64)
				id := meta.ID(fragID)
				if seen[id] {
					return true
				}
				seen[id] = true
				f, err := getFragmentByID(tx, id)
				if err == nil {
					out = append(out, f)
				}
				return true
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}
