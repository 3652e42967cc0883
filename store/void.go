package store

import (
	"context"

	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// Void discards every Save and serves every Load as not-found, ported
// from ImageSaverLib.Storage.VoidStorage — used for dry-run passes and
// throughput benchmarking of everything upstream of the backend.
type Void struct {
	maxResourceSize int64
	requiredWrapTag string
}

func NewVoid(maxResourceSize int64, requiredWrapTag string) *Void {
	if maxResourceSize <= 0 {
		maxResourceSize = DefaultMaxResourceSize
	}
	return &Void{maxResourceSize: maxResourceSize, requiredWrapTag: requiredWrapTag}
}

func (v *Void) Identifier() string      { return "void" }
func (v *Void) MaxResourceSize() int64  { return v.maxResourceSize }
func (v *Void) RequiredWrapTag() string { return v.requiredWrapTag }

func (v *Void) Load(context.Context, string) ([]byte, error) { return nil, &NotFound{} }
func (v *Void) Save(context.Context, []byte, cos.Cksum) (string, error) {
	return cos.GenTie(), nil
}
func (v *Void) Delete(context.Context, string) error       { return nil }
func (v *Void) List(context.Context) ([]string, error)     { return nil, nil }
func (v *Void) Wipe(context.Context) error                 { return nil }

var _ Storage = (*Void)(nil)
