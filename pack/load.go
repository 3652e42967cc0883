package pack

import (
	"context"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/encap"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/meta"
)

// Load returns the encapsulated (compound-side) bytes for the fragment
// identified by hash, serving from the buffer, the last-downloaded
// resource cache, or a fresh backend download, in that order.
func (c *Cache) Load(ctx context.Context, hash cos.Cksum) ([]byte, error) {
	c.mu.Lock()
	if b, ok := c.buffer[hash]; ok {
		data := append([]byte(nil), b.data...)
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	fr, err := lookupFragmentResource(ctx, c.meta, hash)
	if err != nil {
		return nil, err
	}
	f, err := c.meta.GetFragment(ctx, hash)
	if err != nil {
		return nil, err
	}
	res, err := c.meta.GetResource(ctx, fr.ResourceID)
	if err != nil {
		return nil, err
	}

	payload, err := c.loadResourcePayload(ctx, res)
	if err != nil {
		return nil, err
	}
	end := fr.FragmentOffset + f.Size
	if end > int64(len(payload)) {
		return nil, &ferrors.ResourceManipulated{ResourceName: res.Name, Reason: "fragment offset exceeds decapsulated payload"}
	}
	return append([]byte(nil), payload[fr.FragmentOffset:end]...), nil
}

func lookupFragmentResource(ctx context.Context, m meta.Metadata, hash cos.Cksum) (*meta.FragmentResource, error) {
	f, err := m.GetFragment(ctx, hash)
	if err != nil {
		return nil, err
	}
	fr, err := m.GetFragmentResource(ctx, f.ID)
	if err != nil {
		return nil, &ferrors.FragmentMissing{FragmentHash: hash}
	}
	return fr, nil
}

// loadResourcePayload serves the decapsulated payload for res from the
// single-entry last-downloaded cache if enabled and matching, else
// downloads it, collapsing concurrent callers for the same resource name
// into a single backend fetch.
func (c *Cache) loadResourcePayload(ctx context.Context, res *meta.Resource) ([]byte, error) {
	if c.cfg.CacheLastDownloadedResource {
		c.mu.Lock()
		if c.lastDownloaded.name == res.Name {
			data := c.lastDownloaded.data
			c.mu.Unlock()
			return data, nil
		}
		c.mu.Unlock()
	}

	v, err, _ := c.sf.Do(res.Name, func() (interface{}, error) {
		return c.downloadAndVerify(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	payload := v.([]byte)

	if c.cfg.CacheLastDownloadedResource {
		c.mu.Lock()
		c.lastDownloaded.name = res.Name
		c.lastDownloaded.data = payload
		c.mu.Unlock()
	}
	return payload, nil
}

// downloadAndVerify downloads res from the backend and verifies its
// length, hash, and decapsulated length against the metadata row,
// returning the decapsulated payload.
func (c *Cache) downloadAndVerify(ctx context.Context, res *meta.Resource) ([]byte, error) {
	raw, err := c.storage.Load(ctx, res.Name)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) != res.Size {
		return nil, &ferrors.ResourceManipulated{ResourceName: res.Name, Reason: "length mismatch"}
	}
	if actual := cos.SHA256(raw); !actual.Equal(res.Hash) {
		return nil, &ferrors.ResourceManipulated{ResourceName: res.Name, Reason: "hash mismatch"}
	}
	pipeline, err := encap.New(encap.Tags{Compress: res.CompressTag, Wrap: res.WrapTag})
	if err != nil {
		return nil, err
	}
	payload, err := pipeline.Decapsulate(raw)
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) != res.PayloadSize {
		return nil, &ferrors.ResourceManipulated{ResourceName: res.Name, Reason: "decapsulated length mismatch"}
	}
	return payload, nil
}
