package store

import (
	"context"

	"github.com/golang/glog"

	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// Verbose wraps another Storage and logs every call at V(2), ported from
// ImageSaverLib.Storage.VerboseStorage (which printed to stderr; here we
// go through glog like the rest of the module).
type Verbose struct {
	inner Storage
}

func NewVerbose(inner Storage) *Verbose {
	return &Verbose{inner: inner}
}

func (v *Verbose) Identifier() string      { return v.inner.Identifier() }
func (v *Verbose) MaxResourceSize() int64  { return v.inner.MaxResourceSize() }
func (v *Verbose) RequiredWrapTag() string { return v.inner.RequiredWrapTag() }

func (v *Verbose) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := v.inner.Load(ctx, name)
	if err == nil {
		glog.V(2).Infof("store: loaded resource %s (%d bytes)", name, len(data))
	}
	return data, err
}

func (v *Verbose) Save(ctx context.Context, data []byte, hash cos.Cksum) (string, error) {
	glog.V(2).Infof("store: saving resource %s (%d bytes)", hash, len(data))
	return v.inner.Save(ctx, data, hash)
}

func (v *Verbose) Delete(ctx context.Context, name string) error {
	glog.V(2).Infof("store: deleting resource %s", name)
	return v.inner.Delete(ctx, name)
}

func (v *Verbose) List(ctx context.Context) ([]string, error) {
	glog.V(2).Infof("store: listing resource names")
	return v.inner.List(ctx)
}

func (v *Verbose) Wipe(ctx context.Context) error {
	glog.V(2).Infof("store: wiping resources")
	return v.inner.Wipe(ctx)
}

var _ Storage = (*Verbose)(nil)
