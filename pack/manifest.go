package pack

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/meta"
)

// ManifestEntry is one fragment's placement within a packed resource.
type ManifestEntry struct {
	Hash   cos.Cksum
	Offset int64
	Size   int64
}

// Manifest is the fragment→offset index for one resource, kept in memory
// as a write-through cache populated at pack time. It has a msgp
// encoding, but nothing in this package writes it to disk, so it does not
// survive a restart.
//
// msgp (de)serialization is hand-written rather than generated, since the
// manifest's shape (a small fixed-order tuple per entry) is simpler to
// encode directly than to carry a full generated file for.
type Manifest struct {
	ResourceID meta.ID
	Entries    []ManifestEntry
}

var (
	_ msgp.Marshaler   = (*Manifest)(nil)
	_ msgp.Unmarshaler = (*Manifest)(nil)
)

func (m *Manifest) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendInt64(b, int64(m.ResourceID))
	b = msgp.AppendArrayHeader(b, uint32(len(m.Entries)))
	for _, e := range m.Entries {
		b = msgp.AppendArrayHeader(b, 3)
		b = msgp.AppendBytes(b, e.Hash.Bytes())
		b = msgp.AppendInt64(b, e.Offset)
		b = msgp.AppendInt64(b, e.Size)
	}
	return b, nil
}

func (m *Manifest) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	if n != 2 {
		return b, msgp.ArrayError{Wanted: 2, Got: n}
	}
	resID, b, err := msgp.ReadInt64Bytes(b)
	if err != nil {
		return b, err
	}
	m.ResourceID = meta.ID(resID)

	count, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	m.Entries = make([]ManifestEntry, count)
	for i := range m.Entries {
		esz, rest, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return rest, err
		}
		if esz != 3 {
			return rest, msgp.ArrayError{Wanted: 3, Got: esz}
		}
		b = rest
		var hashBytes []byte
		hashBytes, b, err = msgp.ReadBytesBytes(b, nil)
		if err != nil {
			return b, err
		}
		copy(m.Entries[i].Hash[:], hashBytes)
		m.Entries[i].Offset, b, err = msgp.ReadInt64Bytes(b)
		if err != nil {
			return b, err
		}
		m.Entries[i].Size, b, err = msgp.ReadInt64Bytes(b)
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

func (m *Manifest) Msgsize() int {
	size := msgp.ArrayHeaderSize*2 + msgp.Int64Size
	for range m.Entries {
		size += msgp.ArrayHeaderSize + msgp.BytesPrefixSize + cos.SizeofSHA256 + 2*msgp.Int64Size
	}
	return size
}
