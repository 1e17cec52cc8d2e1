package adjacency

import (
	"github.com/mohammed-shakir/region-adjacency/internal/intern"
	"github.com/mohammed-shakir/region-adjacency/internal/quantize"
)

// Unit is one independent piece of work: a point and the regions through it.
type Unit struct {
	Point  quantize.Point
	Owners []intern.ID
}

// Partitioner groups units into batches pulled by workers. Every unit must end
// up in exactly one batch; batch order and grouping never affect the result.
type Partitioner interface {
	Partition(units []Unit) [][]Unit
}

const DefaultChunkSize = 4096

// ChunkPartitioner cuts units into contiguous batches of Size.
type ChunkPartitioner struct {
	Size int
}

func (c ChunkPartitioner) Partition(units []Unit) [][]Unit {
	size := c.Size
	if size <= 0 {
		size = DefaultChunkSize
	}
	out := make([][]Unit, 0, (len(units)+size-1)/size)
	for start := 0; start < len(units); start += size {
		end := min(start+size, len(units))
		out = append(out, units[start:end])
	}
	return out
}
