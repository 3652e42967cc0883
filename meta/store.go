package meta

import "context"

// ListFilter narrows a compound listing.
type ListFilter struct {
	Type             *CompoundType
	NamePrefix       string
	NameSuffix       string
	MinSize          int64
	MaxSlashCount    int // -1 == unlimited; filters by path-depth ("slash-count")
	IncludeSnapshots bool
	Alphabetical     bool
}

// Stats aggregates the counts and sums behind engine.Statistics.
type Stats struct {
	CompoundCount       int64
	UniqueCompoundCount int64 // deduplicated by compound hash, live versions only
	FragmentCount       int64
	ResourceCount       int64
	TotalCompoundSize   int64
	TotalFragmentSize   int64
	TotalResourceSize   int64
	MultipleUsedCount   int64 // excess duplicate fragment references
	SavedBytes          int64 // Σ fragment.size * (refcount - 1)
}

// Metadata is the durable index contract over
// compounds, fragments, resources, and the two mapping tables. It is a
// behavioral contract, not a schema: every mutating method runs inside
// the ambient transaction scope (see Tx), and reads inside that scope
// observe the scope's own uncommitted writes.
type Metadata interface {
	// Tx runs fn inside one re-entrant transaction scope: committing on
	// normal return, rolling back if fn returns an error. Nested calls to
	// Tx (from within fn, on the same Metadata) join the outer scope.
	Tx(ctx context.Context, fn func(ctx context.Context) error) error

	GetCompound(ctx context.Context, name string, version int) (*Compound, error)
	HasCompound(ctx context.Context, name string, version int) (bool, error)
	GetCompoundByHash(ctx context.Context, hash [32]byte, version int) (*Compound, error)
	MakeCompound(ctx context.Context, c *Compound) (ID, error)
	// MakeSnapshot inserts a row cloned from live, with the next unused
	// positive version for live.Name.
	MakeSnapshot(ctx context.Context, live *Compound) (*Compound, error)
	// AddOverwriteCompoundAndMapFragments atomically upserts the live
	// compound row and replaces its sequence mapping.
	AddOverwriteCompoundAndMapFragments(ctx context.Context, c *Compound, seq []CompoundFragment) error
	RenameCompound(ctx context.Context, oldName, newName string, withSnapshots bool) error
	DeleteCompound(ctx context.Context, name string, version int) error
	ListCompounds(ctx context.Context, filter ListFilter) ([]*Compound, error)

	GetFragment(ctx context.Context, hash [32]byte) (*Fragment, error)
	// MakeFragment gets-or-creates a fragment row by hash.
	MakeFragment(ctx context.Context, f *Fragment) (ID, error)
	GetSequence(ctx context.Context, compoundID ID) ([]CompoundFragment, error)
	GetFragmentsByIDs(ctx context.Context, ids []ID) ([]*Fragment, error)

	MakeResource(ctx context.Context, r *Resource) (ID, error)
	GetResourceByHash(ctx context.Context, hash [32]byte) (*Resource, error)
	GetResource(ctx context.Context, id ID) (*Resource, error)
	DeleteResource(ctx context.Context, id ID) error
	ListResources(ctx context.Context) ([]*Resource, error)

	// MakeAndMapFragmentsToResource atomically creates any missing
	// fragment rows and replaces their fragment-resource mapping to
	// point at resourceID, each at the given offset.
	MakeAndMapFragmentsToResource(ctx context.Context, resourceID ID, frags []Fragment, offsets []int64) error
	GetFragmentResource(ctx context.Context, fragmentID ID) (*FragmentResource, error)
	GetFragmentsWithOffsetOnResource(ctx context.Context, resourceID ID) ([]FragmentResource, error)
	MoveFragmentMappings(ctx context.Context, oldResourceID, newResourceID ID) error
	DeleteFragments(ctx context.Context, ids []ID) error

	// GetUnreferencedFragments returns fragments no compound sequence
	// mapping references, used by collectGarbage.
	GetUnreferencedFragments(ctx context.Context, limit int) ([]*Fragment, error)
	// GetFragmentsWithoutResourceMapping returns durable fragment rows
	// with no fragment-resource mapping, used by the MetaResourcelessFragments
	// consistency check (normally always empty).
	GetFragmentsWithoutResourceMapping(ctx context.Context) ([]*Fragment, error)
	GetUnreferencedResources(ctx context.Context) ([]*Resource, error)
	// GetResourceWithReferencedFragmentSize reports, per resource, the sum
	// of sizes of fragments still mapped to it (used by
	// optimizeResourceSpace to find the "holes").
	GetResourceWithReferencedFragmentSize(ctx context.Context) (map[ID]int64, error)
	// GetAllFragmentsSortedByCompoundUsage orders every fragment by the
	// sequence of the first compound that references it, then by that
	// compound's sequence index (used by defragmentResources).
	GetAllFragmentsSortedByCompoundUsage(ctx context.Context) ([]*Fragment, error)

	Stats(ctx context.Context) (Stats, error)

	// Wipe truncates every compound row (cascading their sequence
	// mappings). Fragments/resources are untouched; collectGarbage
	// reclaims them.
	Wipe(ctx context.Context) error
}
