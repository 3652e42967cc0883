// Package memdb is the reference Metadata implementation: an embedded
// buntdb keyspace, used when a durable local index is needed without a
// server to administer.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package memdb

import (
	"context"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/FlorianSauer/fragstore/meta"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is a meta.Metadata backed by a single buntdb database file (or
// ":memory:" for an ephemeral, test-only store).
type Store struct {
	db *buntdb.DB
}

// Open creates or opens a buntdb-backed Store at path. Pass ":memory:"
// for a non-persistent store.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "memdb: open %s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type ctxKey int

const txCtxKey ctxKey = 0

func withTx(ctx context.Context, tx *buntdb.Tx) context.Context {
	return context.WithValue(ctx, txCtxKey, tx)
}

func txFromContext(ctx context.Context) (*buntdb.Tx, bool) {
	tx, ok := ctx.Value(txCtxKey).(*buntdb.Tx)
	return tx, ok
}

// Tx runs fn inside one re-entrant buntdb write transaction: a nested
// call (fn itself calling s.Tx on the same ctx-derived scope) joins the
// already-open transaction rather than deadlocking against buntdb's
// single writer lock.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}
	var inner error
	err := s.db.Update(func(tx *buntdb.Tx) error {
		inner = fn(withTx(ctx, tx))
		return inner
	})
	if err != nil {
		return errors.Wrap(err, "memdb: tx")
	}
	return inner
}

// withRead runs fn against whatever transaction is already on ctx (either
// an ambient Tx scope, write or read), or opens a fresh read-only view if
// there is none.
func (s *Store) withRead(ctx context.Context, fn func(tx *buntdb.Tx) error) error {
	if tx, ok := txFromContext(ctx); ok {
		return fn(tx)
	}
	return s.db.View(fn)
}

// withWrite runs fn against the ambient transaction if present, else opens
// a fresh one-off write transaction.
func (s *Store) withWrite(ctx context.Context, fn func(tx *buntdb.Tx) error) error {
	if tx, ok := txFromContext(ctx); ok {
		return fn(tx)
	}
	return s.db.Update(fn)
}

// nextID increments and returns the named counter. Caller must already
// hold a write transaction.
func nextID(tx *buntdb.Tx, counter string) (meta.ID, error) {
	key := "counter:" + counter
	cur, err := tx.Get(key)
	var n int64
	if err == nil {
		n, _ = strconv.ParseInt(cur, 10, 64)
	} else if err != buntdb.ErrNotFound {
		return 0, err
	}
	n++
	if _, _, err := tx.Set(key, strconv.FormatInt(n, 10), nil); err != nil {
		return 0, err
	}
	return meta.ID(n), nil
}

func idKey(prefix string, id meta.ID) string {
	return fmt.Sprintf("%s:%020d", prefix, int64(id))
}

var _ meta.Metadata = (*Store)(nil)
