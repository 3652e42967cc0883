package pack

import (
	"context"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/meta"
)

// ReaddResource re-buffers every fragment currently mapped to resourceID
// so the next pack pass re-emits them, optionally deleting the now-stale
// resource.
func (c *Cache) ReaddResource(ctx context.Context, resourceID meta.ID) error {
	return c.appendToResource(ctx, resourceID)
}

// ReaddFragment re-buffers one durable fragment's encapsulated bytes,
// bypassing the normal already-durable dedup short-circuit, so a
// subsequent pack pass may re-emit it into a different resource.
func (c *Cache) ReaddFragment(ctx context.Context, hash cos.Cksum) error {
	c.mu.Lock()
	if _, ok := c.buffer[hash]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	fr, err := lookupFragmentResource(ctx, c.meta, hash)
	if err != nil {
		return err
	}
	f, err := c.meta.GetFragment(ctx, hash)
	if err != nil {
		return err
	}
	res, err := c.meta.GetResource(ctx, fr.ResourceID)
	if err != nil {
		return err
	}
	payload, err := c.loadResourcePayload(ctx, res)
	if err != nil {
		return err
	}
	end := fr.FragmentOffset + f.Size
	if end > int64(len(payload)) {
		return &ferrors.ResourceManipulated{ResourceName: res.Name, Reason: "fragment offset exceeds decapsulated payload"}
	}
	data := append([]byte(nil), payload[fr.FragmentOffset:end]...)

	c.mu.Lock()
	if _, ok := c.buffer[hash]; !ok {
		c.buffer[hash] = &buffered{frag: *f, data: data}
		c.order = append(c.order, hash)
	}
	c.mu.Unlock()
	return nil
}
