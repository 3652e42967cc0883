package memdb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/meta"
)

func compoundDataKey(id meta.ID) string { return idKey("compound:data", id) }

func compoundNameKey(name string, version int) string {
	return fmt.Sprintf("compound:by_name:%s:%010d", name, version)
}

func compoundHashKeyPrefix(hash cos.Cksum, version int) string {
	return fmt.Sprintf("compound:by_hash:%s:%010d:", hash, version)
}

func (s *Store) GetCompound(ctx context.Context, name string, version int) (*meta.Compound, error) {
	var out *meta.Compound
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		idStr, err := tx.Get(compoundNameKey(name, version))
		if err == buntdb.ErrNotFound {
			return &ferrors.CompoundNotExisting{Name: name, Version: version}
		} else if err != nil {
			return err
		}
		id, _ := strconv.ParseInt(idStr, 10, 64)
		c, err := getCompoundByID(tx, meta.ID(id))
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func (s *Store) HasCompound(ctx context.Context, name string, version int) (bool, error) {
	var ok bool
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		_, err := tx.Get(compoundNameKey(name, version))
		if err == buntdb.ErrNotFound {
			return nil
		} else if err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) GetCompoundByHash(ctx context.Context, hash [32]byte, version int) (*meta.Compound, error) {
	var out *meta.Compound
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		prefix := compoundHashKeyPrefix(cos.Cksum(hash), version)
		var idStr string
		errIter := tx.AscendKeys(prefix+"*", func(key, value string) bool {
			idStr = value
			return false // first match only
		})
		if errIter != nil {
			return errIter
		}
		if idStr == "" {
			return &ferrors.CompoundNotExisting{Version: version}
		}
		id, _ := strconv.ParseInt(idStr, 10, 64)
		c, err := getCompoundByID(tx, meta.ID(id))
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func getCompoundByID(tx *buntdb.Tx, id meta.ID) (*meta.Compound, error) {
	raw, err := tx.Get(compoundDataKey(id))
	if err == buntdb.ErrNotFound {
		return nil, &ferrors.CompoundNotExisting{}
	} else if err != nil {
		return nil, err
	}
	var c meta.Compound
	if err := json.UnmarshalFromString(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func putCompound(tx *buntdb.Tx, c *meta.Compound) error {
	raw, err := json.MarshalToString(c)
	if err != nil {
		return err
	}
	if _, _, err := tx.Set(compoundDataKey(c.ID), raw, nil); err != nil {
		return err
	}
	if _, _, err := tx.Set(compoundNameKey(c.Name, c.Version), strconv.FormatInt(int64(c.ID), 10), nil); err != nil {
		return err
	}
	hashKey := compoundHashKeyPrefix(c.Hash, c.Version) + strconv.FormatInt(int64(c.ID), 10)
	if _, _, err := tx.Set(hashKey, strconv.FormatInt(int64(c.ID), 10), nil); err != nil {
		return err
	}
	return nil
}

func (s *Store) MakeCompound(ctx context.Context, c *meta.Compound) (meta.ID, error) {
	var id meta.ID
	err := s.withWrite(ctx, func(tx *buntdb.Tx) error {
		if _, err := tx.Get(compoundNameKey(c.Name, c.Version)); err == nil {
			return &ferrors.CompoundAlreadyExists{Name: c.Name}
		} else if err != buntdb.ErrNotFound {
			return err
		}
		newID, err := nextID(tx, "compound")
		if err != nil {
			return err
		}
		c.ID = newID
		id = newID
		return putCompound(tx, c)
	})
	return id, err
}

func (s *Store) MakeSnapshot(ctx context.Context, live *meta.Compound) (*meta.Compound, error) {
	var snap *meta.Compound
	err := s.withWrite(ctx, func(tx *buntdb.Tx) error {
		next := 1
		prefix := fmt.Sprintf("compound:by_name:%s:", live.Name)
		_ = tx.AscendKeys(prefix+"*", func(key, value string) bool {
			parts := strings.Split(key, ":")
			v, _ := strconv.Atoi(parts[len(parts)-1])
			if v >= next {
				next = v + 1
			}
			return true
		})
		clone := *live
		clone.Version = next
		newID, err := nextID(tx, "compound")
		if err != nil {
			return err
		}
		clone.ID = newID
		if err := putCompound(tx, &clone); err != nil {
			return err
		}
		var rows []meta.CompoundFragment
		_ = tx.AscendKeys(sequencePrefix(live.ID)+"*", func(key, value string) bool {
			var idx int
			fmt.Sscanf(key, sequencePrefix(live.ID)+"%d", &idx)
			fragID, _ := strconv.ParseInt(value, 10, 64)
			rows = append(rows, meta.CompoundFragment{CompoundID: clone.ID, FragmentID: meta.ID(fragID), SequenceIndex: idx})
			return true
		})
		for _, row := range rows {
			if err := putSequenceRow(tx, row); err != nil {
				return err
			}
		}
		snap = &clone
		return nil
	})
	return snap, err
}

func (s *Store) AddOverwriteCompoundAndMapFragments(ctx context.Context, c *meta.Compound, seq []meta.CompoundFragment) error {
	return s.withWrite(ctx, func(tx *buntdb.Tx) error {
		existingID, err := tx.Get(compoundNameKey(c.Name, c.Version))
		if err == nil {
			n, _ := strconv.ParseInt(existingID, 10, 64)
			c.ID = meta.ID(n)
			if err := clearSequence(tx, c.ID); err != nil {
				return err
			}
		} else if err == buntdb.ErrNotFound {
			newID, err := nextID(tx, "compound")
			if err != nil {
				return err
			}
			c.ID = newID
		} else {
			return err
		}
		if err := putCompound(tx, c); err != nil {
			return err
		}
		for _, row := range seq {
			row.CompoundID = c.ID
			if err := putSequenceRow(tx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) RenameCompound(ctx context.Context, oldName, newName string, withSnapshots bool) error {
	return s.withWrite(ctx, func(tx *buntdb.Tx) error {
		versions := []int{0}
		if withSnapshots {
			prefix := fmt.Sprintf("compound:by_name:%s:", oldName)
			_ = tx.AscendKeys(prefix+"*", func(key, value string) bool {
				parts := strings.Split(key, ":")
				v, _ := strconv.Atoi(parts[len(parts)-1])
				if v != 0 {
					versions = append(versions, v)
				}
				return true
			})
		}
		for _, version := range versions {
			nameKey := compoundNameKey(oldName, version)
			idStr, err := tx.Get(nameKey)
			if err == buntdb.ErrNotFound {
				continue
			} else if err != nil {
				return err
			}
			id, _ := strconv.ParseInt(idStr, 10, 64)
			c, err := getCompoundByID(tx, meta.ID(id))
			if err != nil {
				return err
			}
			if _, err := tx.Delete(nameKey); err != nil && err != buntdb.ErrNotFound {
				return err
			}
			c.Name = newName
			if err := putCompound(tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DeleteCompound(ctx context.Context, name string, version int) error {
	return s.withWrite(ctx, func(tx *buntdb.Tx) error {
		nameKey := compoundNameKey(name, version)
		idStr, err := tx.Get(nameKey)
		if err == buntdb.ErrNotFound {
			return &ferrors.CompoundNotExisting{Name: name, Version: version}
		} else if err != nil {
			return err
		}
		id, _ := strconv.ParseInt(idStr, 10, 64)
		c, err := getCompoundByID(tx, meta.ID(id))
		if err != nil {
			return err
		}
		if _, err := tx.Delete(nameKey); err != nil {
			return err
		}
		if _, err := tx.Delete(compoundDataKey(c.ID)); err != nil {
			return err
		}
		hashKey := compoundHashKeyPrefix(c.Hash, c.Version) + strconv.FormatInt(int64(c.ID), 10)
		if _, err := tx.Delete(hashKey); err != nil && err != buntdb.ErrNotFound {
			return err
		}
		return clearSequence(tx, c.ID)
	})
}

func (s *Store) ListCompounds(ctx context.Context, filter meta.ListFilter) ([]*meta.Compound, error) {
	var out []*meta.Compound
	err := s.withRead(ctx, func(tx *buntdb.Tx) error {
		return tx.AscendKeys("compound:data:*", func(key, value string) bool {
			var c meta.Compound
			if err := json.UnmarshalFromString(value, &c); err != nil {
				return true
			}
			if matchesFilter(&c, filter) {
				cc := c
				out = append(out, &cc)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	if filter.Alphabetical {
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	}
	return out, nil
}

func matchesFilter(c *meta.Compound, f meta.ListFilter) bool {
	if !f.IncludeSnapshots && !c.IsLive() {
		return false
	}
	if f.Type != nil && c.Type != *f.Type {
		return false
	}
	if f.NamePrefix != "" && !strings.HasPrefix(c.Name, f.NamePrefix) {
		return false
	}
	if f.NameSuffix != "" && !strings.HasSuffix(c.Name, f.NameSuffix) {
		return false
	}
	if c.Size < f.MinSize {
		return false
	}
	if f.MaxSlashCount >= 0 && strings.Count(c.Name, "/") > f.MaxSlashCount {
		return false
	}
	return true
}
