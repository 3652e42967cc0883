package pack

import (
	"context"
	"fmt"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"golang.org/x/sync/singleflight"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/encap"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/meta"
	"github.com/FlorianSauer/fragstore/store"
)

// buffered is one not-yet-uploaded fragment: its already-encapsulated
// (compound-side) bytes plus the metadata row describing it.
type buffered struct {
	frag meta.Fragment
	data []byte
}

// Cache is the fragment cache and resource packer. It is safe for
// concurrent use; Add/Flush serialize on mu, staying re-entrant across
// nested writer scopes via Open/Close (not nested locking of mu itself).
type Cache struct {
	cfg     Config
	meta    meta.Metadata
	pending *meta.Pending
	storage store.Storage

	mu          sync.Mutex
	policy      Policy
	writerDepth int
	buffer      map[cos.Cksum]*buffered
	order       []cos.Cksum // insertion order, used as packing order

	// haveHash is a probabilistic pre-check for "has this Cache already
	// seen this fragment hash", avoiding a metadata round-trip on the hot
	// content-seen-before path. False positives just cost an extra
	// metadata lookup. Only hashes passed to this Cache's Add are
	// inserted, so a fragment made durable by another Cache over the
	// same metadata is not found here and is buffered again.
	// Entries are cleared via ForgetFragments once CollectGarbage
	// actually deletes the matching fragment row.
	haveHash *cuckoo.Filter

	sf singleflight.Group // collapses concurrent resource downloads

	manifests map[meta.ID]*Manifest // resourceID -> packing manifest, write-through

	lastDownloaded struct {
		name string
		data []byte // decapsulated resource payload
	}
}

func NewCache(cfg Config, m meta.Metadata, p *meta.Pending, s store.Storage) *Cache {
	return &Cache{
		cfg:       cfg,
		meta:      m,
		pending:   p,
		storage:   s,
		policy:    Pass,
		buffer:    make(map[cos.Cksum]*buffered),
		haveHash:  cuckoo.NewFilter(1_000_000),
		manifests: make(map[meta.ID]*Manifest),
	}
}

// ForgetFragments clears hashes from the haveHash pre-check filter. The
// caller (CollectGarbage, once it has actually deleted the matching
// fragment rows) is responsible for calling this so the filter doesn't
// keep reporting a false positive for content that was deleted, and so
// it doesn't grow without bound against its fixed capacity over a
// long-running engine's lifetime.
func (c *Cache) ForgetFragments(hashes []cos.Cksum) {
	for _, h := range hashes {
		c.haveHash.Delete(h.Bytes())
	}
}

// SetPolicy changes the active packing policy and returns the previous
// one, so callers (optimizeResourceUsage, defragmentResources) can
// restore it on completion.
func (c *Cache) SetPolicy(p Policy) Policy {
	c.mu.Lock()
	old := c.policy
	c.policy = p
	c.mu.Unlock()
	return old
}

// OpenWriter marks the start of a writer scope; nested calls just bump a
// depth counter.
func (c *Cache) OpenWriter() {
	c.mu.Lock()
	c.writerDepth++
	c.mu.Unlock()
}

// CloseWriter ends a writer scope. On the outermost close, it performs a
// total flush if flush is true (success path); on failure the caller
// passes flush=false and is responsible for pending-controller cleanup.
func (c *Cache) CloseWriter(ctx context.Context, flush bool) error {
	c.mu.Lock()
	c.writerDepth--
	outermost := c.writerDepth == 0
	c.mu.Unlock()
	if outermost && flush {
		return c.Flush(ctx, true)
	}
	return nil
}

// Add buffers one already-encapsulated fragment's bytes, deduplicating by
// hash against both the in-memory buffer and durable metadata. It returns
// the fragment record (freshly computed or the pre-existing one) and
// does not by itself guarantee durability — call Flush or rely on
// policy-triggered packing for that.
func (c *Cache) Add(ctx context.Context, payloadSize int64, data []byte) (meta.Fragment, error) {
	hash := cos.SHA256(data)

	c.mu.Lock()
	if b, ok := c.buffer[hash]; ok {
		c.mu.Unlock()
		return b.frag, nil
	}
	c.mu.Unlock()

	if c.haveHash.Lookup(hash.Bytes()) {
		if existing, err := c.meta.GetFragment(ctx, hash); err == nil {
			return *existing, nil
		}
		// false positive: fall through and buffer it fresh.
	}

	frag := meta.Fragment{Hash: hash, Size: int64(len(data)), PayloadSize: payloadSize}
	c.mu.Lock()
	c.buffer[hash] = &buffered{frag: frag, data: data}
	c.order = append(c.order, hash)
	c.mu.Unlock()

	c.pending.AddFragment(&meta.PendingFragment{Fragment: frag})
	c.haveHash.InsertUnique(hash.Bytes())

	return frag, c.maybePack(ctx)
}

// maybePack packs and uploads whatever the active policy allows right
// now, without forcing a total flush. Fill runs the percentage-filled
// pack first, then additionally tries to append to the smallest existing
// resource; FillAlways appends, and packs by percentage fill only when
// there is no existing resource to append to.
func (c *Cache) maybePack(ctx context.Context) error {
	switch c.policy {
	case FillAlways:
		return c.packFillAlways(ctx, false)
	case Fill:
		if err := c.packThresholdReached(ctx, false); err != nil {
			return err
		}
		return c.packFillAlways(ctx, false)
	default:
		return c.packThresholdReached(ctx, false)
	}
}

// Flush performs a total flush: under force=true every remaining
// buffered fragment is packed and uploaded regardless of fill level.
// Dispatches on the active policy exactly like maybePack, so a
// totalflush under Fill/FillAlways still tries appending to the smallest
// existing resource rather than falling back to percentage-filled
// packing alone; whatever appendToResource stages but can't itself
// upload is picked up by the unconditional drain below.
func (c *Cache) Flush(ctx context.Context, force bool) error {
	switch c.policy {
	case FillAlways:
		if err := c.packFillAlways(ctx, force); err != nil {
			return err
		}
	case Fill:
		if err := c.packThresholdReached(ctx, force); err != nil {
			return err
		}
		if err := c.packFillAlways(ctx, force); err != nil {
			return err
		}
	default:
		if err := c.packThresholdReached(ctx, force); err != nil {
			return err
		}
	}
	if !force {
		return nil
	}
	c.mu.Lock()
	remaining := len(c.order)
	c.mu.Unlock()
	if remaining == 0 {
		return nil
	}
	return c.packThresholdReached(ctx, true)
}

// packThresholdReached bins the current buffer and uploads every packet
// that reaches MinFill; if all=true every packet is uploaded regardless.
func (c *Cache) packThresholdReached(ctx context.Context, all bool) error {
	maxSize := c.storage.MaxResourceSize()
	for {
		c.mu.Lock()
		items := c.bufferedItemsLocked()
		c.mu.Unlock()
		if len(items) == 0 {
			return nil
		}
		packets := packFragments(items, maxSize, c.cfg.Strategy)
		if !all && !reachesMinFill(packets, maxSize, c.cfg.MinFill) {
			return nil
		}
		progressed := false
		for _, p := range packets {
			if !all && float64(p.TotalSize) < float64(maxSize)*c.cfg.MinFill {
				continue
			}
			if err := c.upload(ctx, p); err != nil {
				return err
			}
			progressed = true
		}
		if !progressed {
			return nil
		}
		if !all {
			// one pass is enough; remaining buffer didn't reach
			// threshold or was already uploaded above.
			return nil
		}
	}
}

// packFillAlways tries to append the buffer to the smallest existing
// backend resource. When no resource exists it falls back to
// percentage-filled packing; a failed resource listing is not an error.
func (c *Cache) packFillAlways(ctx context.Context, force bool) error {
	resources, err := c.meta.ListResources(ctx)
	if err != nil {
		return nil
	}
	if len(resources) == 0 {
		return c.packThresholdReached(ctx, force)
	}
	smallest := resources[0]
	for _, r := range resources[1:] {
		if r.Size < smallest.Size {
			smallest = r
		}
	}
	return c.appendToResource(ctx, smallest.ID)
}

// appendToResource downloads resourceID, re-buffers its fragments, and
// lets the next pack pass re-emit it (possibly with newly buffered
// fragments folded in), deleting the stale resource afterward when
// AutoDeleteResource is set.
func (c *Cache) appendToResource(ctx context.Context, resourceID meta.ID) error {
	res, err := c.meta.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	mappings, err := c.meta.GetFragmentsWithOffsetOnResource(ctx, resourceID)
	if err != nil || len(mappings) == 0 {
		return err
	}
	payload, err := c.downloadAndVerify(ctx, res)
	if err != nil {
		return err
	}
	ids := make([]meta.ID, len(mappings))
	for i, m := range mappings {
		ids[i] = m.FragmentID
	}
	frags, err := c.meta.GetFragmentsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for i, m := range mappings {
		f := frags[i]
		if _, ok := c.buffer[f.Hash]; ok {
			continue
		}
		end := m.FragmentOffset + f.Size
		if end > int64(len(payload)) {
			c.mu.Unlock()
			return &ferrors.ResourceManipulated{ResourceName: res.Name, Reason: "fragment offset exceeds payload"}
		}
		data := append([]byte(nil), payload[m.FragmentOffset:end]...)
		c.buffer[f.Hash] = &buffered{frag: *f, data: data}
		c.order = append(c.order, f.Hash)
	}
	c.mu.Unlock()

	if c.cfg.AutoDeleteResource {
		if err := c.storage.Delete(ctx, res.Name); err != nil {
			return err
		}
		delete(c.manifests, resourceID)
		return c.meta.DeleteResource(ctx, resourceID)
	}
	return nil
}

func (c *Cache) bufferedItemsLocked() []item {
	items := make([]item, 0, len(c.order))
	for _, h := range c.order {
		b, ok := c.buffer[h]
		if !ok {
			continue
		}
		items = append(items, item{hash: h, size: b.frag.Size})
	}
	return items
}

// upload concatenates a packet's fragments, encapsulates the result at
// resource scope, uploads it, records the mapping, and commits any
// now-durable pending compounds.
func (c *Cache) upload(ctx context.Context, p Packet) error {
	if required := c.storage.RequiredWrapTag(); !encap.RequiresWrapSuffix(c.cfg.WrapTagResource, required) {
		return &ferrors.Unsupported{What: fmt.Sprintf(
			"resource wrap tag %q is not suffix-compatible with backend %q's required tag %q",
			c.cfg.WrapTagResource, c.storage.Identifier(), required)}
	}

	c.mu.Lock()
	bufs := make([]*buffered, 0, len(p.Hashes))
	for _, h := range p.Hashes {
		if b, ok := c.buffer[h]; ok {
			bufs = append(bufs, b)
		}
	}
	c.mu.Unlock()
	if len(bufs) == 0 {
		return nil
	}

	concat := make([]byte, 0, p.TotalSize)
	offsets := make([]int64, len(bufs))
	frags := make([]meta.Fragment, len(bufs))
	for i, b := range bufs {
		offsets[i] = int64(len(concat))
		concat = append(concat, b.data...)
		frags[i] = b.frag
	}
	payloadSize := int64(len(concat))

	pipeline, err := encap.New(encap.Tags{Compress: c.cfg.CompressTagResource, Wrap: c.cfg.WrapTagResource})
	if err != nil {
		return err
	}
	encapsulated, err := pipeline.Encapsulate(concat)
	if err != nil {
		return err
	}
	resourceHash := cos.SHA256(encapsulated)

	var resourceID meta.ID
	if existing, err := c.meta.GetResourceByHash(ctx, resourceHash); err == nil {
		resourceID = existing.ID
	} else {
		name, err := c.storage.Save(ctx, encapsulated, resourceHash)
		if err != nil {
			return err
		}
		resourceID, err = c.meta.MakeResource(ctx, &meta.Resource{
			Name:        name,
			Size:        int64(len(encapsulated)),
			PayloadSize: payloadSize,
			Hash:        resourceHash,
			WrapTag:     c.cfg.WrapTagResource,
			CompressTag: c.cfg.CompressTagResource,
		})
		if err != nil {
			return err
		}
	}

	if err := c.meta.MakeAndMapFragmentsToResource(ctx, resourceID, frags, offsets); err != nil {
		return err
	}

	manifest := &Manifest{ResourceID: resourceID, Entries: make([]ManifestEntry, len(bufs))}
	c.mu.Lock()
	for i, b := range bufs {
		delete(c.buffer, b.frag.Hash)
		manifest.Entries[i] = ManifestEntry{Hash: b.frag.Hash, Offset: offsets[i], Size: b.frag.Size}
	}
	c.order = removeHashes(c.order, p.Hashes)
	c.manifests[resourceID] = manifest
	c.mu.Unlock()

	for _, b := range bufs {
		c.pending.MarkFragmentDurable(b.frag.Hash)
	}
	return c.commitDurableCompounds(ctx)
}

func removeHashes(order []cos.Cksum, remove []cos.Cksum) []cos.Cksum {
	rm := make(map[cos.Cksum]bool, len(remove))
	for _, h := range remove {
		rm[h] = true
	}
	out := order[:0]
	for _, h := range order {
		if !rm[h] {
			out = append(out, h)
		}
	}
	return out
}

// commitDurableCompounds pops every pending compound whose fragments are
// now all durable and writes its compound row + sequence mapping.
func (c *Cache) commitDurableCompounds(ctx context.Context) error {
	for _, pc := range c.pending.PopDurableCompounds() {
		seq := make([]meta.CompoundFragment, len(pc.Seq))
		for i, h := range pc.Seq {
			f, err := c.meta.GetFragment(ctx, h)
			if err != nil {
				return err
			}
			seq[i] = meta.CompoundFragment{FragmentID: f.ID, SequenceIndex: i}
		}
		if err := c.meta.AddOverwriteCompoundAndMapFragments(ctx, &pc.Compound, seq); err != nil {
			return err
		}
		c.pending.RemoveCompound(pc.Compound.Name)
	}
	return nil
}
