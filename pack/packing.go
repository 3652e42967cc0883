package pack

import (
	"sort"

	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// item is one buffered fragment as seen by the binning strategies.
type item struct {
	hash cos.Cksum
	size int64
}

// Packet is a set of fragment hashes destined for one resource, in the
// order their bytes will be concatenated.
type Packet struct {
	Hashes    []cos.Cksum
	TotalSize int64
}

// packFragments buckets fragments into packets of at most maxSize bytes each,
// using the configured strategy, then returns them sorted by descending
// total size.
func packFragments(frags []item, maxSize int64, strategy Strategy) []Packet {
	var packets []Packet
	switch strategy {
	case BinPacking:
		packets = binPack(frags, maxSize)
	default:
		packets = fill(frags, maxSize)
	}
	sort.Slice(packets, func(i, j int) bool { return packets[i].TotalSize > packets[j].TotalSize })
	return packets
}

// fill is the greedy single-pass strategy: fragments are taken in the
// order given (buffer insertion order) and a new packet starts whenever
// the next fragment would overflow maxSize.
func fill(frags []item, maxSize int64) []Packet {
	var packets []Packet
	var cur Packet
	for _, f := range frags {
		if cur.TotalSize > 0 && cur.TotalSize+f.size > maxSize {
			packets = append(packets, cur)
			cur = Packet{}
		}
		cur.Hashes = append(cur.Hashes, f.hash)
		cur.TotalSize += f.size
	}
	if len(cur.Hashes) > 0 {
		packets = append(packets, cur)
	}
	return packets
}

// binPack is best-fit decreasing: fragments are sorted by descending
// size, then each one goes into the existing packet with the least
// remaining room that can still hold it, or a new packet otherwise.
func binPack(frags []item, maxSize int64) []Packet {
	sorted := make([]item, len(frags))
	copy(sorted, frags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].size > sorted[j].size })

	var packets []Packet
	for _, f := range sorted {
		best := -1
		bestRemaining := maxSize + 1
		for i, p := range packets {
			remaining := maxSize - p.TotalSize
			if f.size <= remaining && remaining < bestRemaining {
				best = i
				bestRemaining = remaining
			}
		}
		if best == -1 {
			packets = append(packets, Packet{Hashes: []cos.Cksum{f.hash}, TotalSize: f.size})
		} else {
			packets[best].Hashes = append(packets[best].Hashes, f.hash)
			packets[best].TotalSize += f.size
		}
	}
	return packets
}

// reachesMinFill reports whether any packet's total size reaches
// minFill*maxSize.
func reachesMinFill(packets []Packet, maxSize int64, minFill float64) bool {
	threshold := float64(maxSize) * minFill
	for _, p := range packets {
		if float64(p.TotalSize) >= threshold {
			return true
		}
	}
	return false
}
