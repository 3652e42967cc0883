package meta

import (
	"sync"

	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// PendingFragment is a not-yet-durable fragment: its metadata row may or
// may not exist yet, but it has not finished a successful upload.
type PendingFragment struct {
	Fragment Fragment
	Durable  bool // true once the fragment cache has recorded its resource mapping
}

// PendingCompound is a not-yet-durable compound together with its
// per-sequence-index fragment hashes.
type PendingCompound struct {
	Compound Compound
	Seq      []cos.Cksum // fragment hash per sequence index, dense from 0
}

// Pending is the in-memory pending-objects controller: it lets queries
// inside a write transaction see the transaction's own writes before
// they are durable, and lets the engine facade clean up after a failed
// writer without a partial metadata commit.
//
// Pending is safe for concurrent use; all operations take a short
// critical section under mu.
type Pending struct {
	mu        sync.Mutex
	compounds map[string]*PendingCompound   // by compound name
	fragments map[cos.Cksum]*PendingFragment // by fragment hash
}

func NewPending() *Pending {
	return &Pending{
		compounds: make(map[string]*PendingCompound),
		fragments: make(map[cos.Cksum]*PendingFragment),
	}
}

func (p *Pending) AddCompound(c *PendingCompound) {
	p.mu.Lock()
	p.compounds[c.Compound.Name] = c
	p.mu.Unlock()
}

func (p *Pending) RemoveCompound(name string) {
	p.mu.Lock()
	delete(p.compounds, name)
	p.mu.Unlock()
}

func (p *Pending) LookupCompoundByName(name string) (*PendingCompound, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.compounds[name]
	return c, ok
}

func (p *Pending) LookupCompoundByHash(hash cos.Cksum) (*PendingCompound, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.compounds {
		if c.Compound.Hash == hash && c.Compound.IsLive() {
			return c, true
		}
	}
	return nil, false
}

// Sequence returns the pending fragment-hash sequence for a pending
// compound by name, or nil if there is none pending under that name.
func (p *Pending) Sequence(name string) []cos.Cksum {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.compounds[name]
	if !ok {
		return nil
	}
	return append([]cos.Cksum(nil), c.Seq...)
}

func (p *Pending) AddFragment(f *PendingFragment) {
	p.mu.Lock()
	p.fragments[f.Fragment.Hash] = f
	p.mu.Unlock()
}

func (p *Pending) RemoveFragment(hash cos.Cksum) {
	p.mu.Lock()
	delete(p.fragments, hash)
	p.mu.Unlock()
}

func (p *Pending) LookupFragment(hash cos.Cksum) (*PendingFragment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.fragments[hash]
	return f, ok
}

// MarkFragmentDurable flips a pending fragment's Durable bit, e.g. once
// the fragment cache has recorded its resource mapping.
func (p *Pending) MarkFragmentDurable(hash cos.Cksum) {
	p.mu.Lock()
	if f, ok := p.fragments[hash]; ok {
		f.Durable = true
	}
	p.mu.Unlock()
}

// PopDurableCompounds removes and returns every pending compound whose
// entire fragment sequence is durable, used by the fragment cache to
// decide which sequence-mapping rows it can now commit.
func (p *Pending) PopDurableCompounds() []*PendingCompound {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*PendingCompound
	for name, c := range p.compounds {
		if p.allDurableLocked(c.Seq) {
			out = append(out, c)
			delete(p.compounds, name)
		}
	}
	return out
}

func (p *Pending) allDurableLocked(seq []cos.Cksum) bool {
	for _, h := range seq {
		f, ok := p.fragments[h]
		if !ok || !f.Durable {
			return false
		}
	}
	return true
}

// AllCompounds and AllFragments support the engine facade's rollback
// iteration on writer failure.
func (p *Pending) AllCompounds() []*PendingCompound {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*PendingCompound, 0, len(p.compounds))
	for _, c := range p.compounds {
		out = append(out, c)
	}
	return out
}

func (p *Pending) AllFragments() []*PendingFragment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*PendingFragment, 0, len(p.fragments))
	for _, f := range p.fragments {
		out = append(out, f)
	}
	return out
}

// Clear empties both tables, used after the facade has finished rollback
// cleanup for a failed writer.
func (p *Pending) Clear() {
	p.mu.Lock()
	p.compounds = make(map[string]*PendingCompound)
	p.fragments = make(map[cos.Cksum]*PendingFragment)
	p.mu.Unlock()
}
