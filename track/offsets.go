// Package track reconstructs per-sample offsets from a track's sample
// table (stbl) and exposes a lazy, attribute-rich view over one track of a
// parsed file.
package track

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/jenslar/mp4nav/box"
)

// ErrIncompleteSampleTable is returned when a required stbl child (stsz,
// stsc, or stco/co64) is missing from the table handed to Reconstruct. A
// trak that has been entered but whose stbl hasn't been fully walked yet
// produces this error rather than a silently empty table.
var ErrIncompleteSampleTable = errors.New("track: sample table is incomplete")

// ParallelChunkThreshold is the chunk count above which the facade uses
// ReconstructParallel, which splits the chunk-offset array into per-CPU
// partitions and expands them concurrently, instead of Reconstruct. Below it the fixed cost of
// spinning up goroutines isn't worth paying.
const ParallelChunkThreshold = 4096

// SampleOffset is one sample's reconstructed position, size and timing.
type SampleOffset struct {
	Position           int64
	Size               uint32
	Duration           uint32
	PresentationOffset int32
	IsSync             bool
}

// SampleOffsetTable is the flat, order-preserving reconstruction of a
// track's per-sample layout, merged from stts/stsc/stsz/stco(co64)
// [/ctts/stss].
type SampleOffsetTable struct {
	Samples []SampleOffset
}

// SampleTableBoxes bundles the decoded stbl children Reconstruct needs.
// Ctts and Stss are optional: a nil Ctts means every sample's
// PresentationOffset is 0; a nil Stss means every sample is a sync sample.
type SampleTableBoxes struct {
	Stts *box.Stts
	Stsc *box.Stsc
	Stsz *box.Stsz
	Stco *box.Stco // widened chunk offsets; produced by DecodeStco or DecodeCo64
	Ctts *box.Ctts
	Stss *box.Stss
}

// chunkSampleCount resolves, for a 1-based chunk index, how many samples
// it holds, per stsc's run-length encoding: the last entry whose
// FirstChunk <= chunk applies.
func chunkSampleCount(entries []box.StscEntry, chunk uint32) uint32 {
	count := uint32(0)
	for _, e := range entries {
		if e.FirstChunk > chunk {
			break
		}
		count = e.SamplesPerChunk
	}
	return count
}

// sampleSize returns the size of the sample at the given 0-based index,
// whether stsz stored a constant size or a per-sample table.
func sampleSize(stsz *box.Stsz, index int) uint32 {
	if stsz.SampleSize != 0 {
		return stsz.SampleSize
	}
	if index < len(stsz.EntrySizes) {
		return stsz.EntrySizes[index]
	}
	return 0
}

// expandDurations flattens stts's run-length entries into one duration per
// sample, stopping once count samples have been produced (a file may carry
// a few more or fewer stts-implied samples than stsz does; the sample
// table, not stts, is authoritative for count).
func expandDurations(entries []box.SttsEntry, count int) []uint32 {
	out := make([]uint32, 0, count)
	for _, e := range entries {
		for i := uint32(0); i < e.SampleCount && len(out) < count; i++ {
			out = append(out, e.SampleDelta)
		}
		if len(out) >= count {
			break
		}
	}
	for len(out) < count {
		out = append(out, 0)
	}
	return out
}

// expandPresentationOffsets flattens ctts's run-length entries the same
// way; when ctts is nil every offset is 0.
func expandPresentationOffsets(c *box.Ctts, count int) []int32 {
	out := make([]int32, 0, count)
	if c != nil {
		for _, e := range c.Entries {
			for i := uint32(0); i < e.SampleCount && len(out) < count; i++ {
				out = append(out, e.SampleOffset)
			}
			if len(out) >= count {
				break
			}
		}
	}
	for len(out) < count {
		out = append(out, 0)
	}
	return out
}

// syncSet builds the 1-based sync-sample index set from stss; when stss is
// nil every sample is a sync sample and the set is reported as absent via
// a nil map (callers treat "not found in nil map" specially).
func syncSet(s *box.Stss) map[uint32]bool {
	if s == nil {
		return nil
	}
	m := make(map[uint32]bool, len(s.Samples))
	for _, n := range s.Samples {
		m[n] = true
	}
	return m
}

// Reconstruct merges a track's sample table boxes into a flat, per-sample
// offset table. The stbl child boxes may have been decoded in any order
// (spec's order-agnostic dispatch); only the fully-populated
// SampleTableBoxes value matters here.
func Reconstruct(t SampleTableBoxes) (SampleOffsetTable, error) {
	if t.Stsz == nil || t.Stsc == nil || t.Stco == nil {
		return SampleOffsetTable{}, errors.WithStack(ErrIncompleteSampleTable)
	}

	count := int(t.Stsz.SampleCount)
	durations := expandDurations(valueOrEmptyStts(t.Stts), count)
	presOffsets := expandPresentationOffsets(t.Ctts, count)
	syncSamples := syncSet(t.Stss)

	samples := make([]SampleOffset, 0, count)
	sampleIdx := 0
	for chunk := uint32(1); int(chunk) <= len(t.Stco.ChunkOffsets) && sampleIdx < count; chunk++ {
		samplesInChunk := chunkSampleCount(t.Stsc.Entries, chunk)
		pos := int64(t.Stco.ChunkOffsets[chunk-1])
		for i := uint32(0); i < samplesInChunk && sampleIdx < count; i++ {
			size := sampleSize(t.Stsz, sampleIdx)
			isSync := syncSamples == nil || syncSamples[uint32(sampleIdx+1)]
			samples = append(samples, SampleOffset{
				Position:           pos,
				Size:               size,
				Duration:           durations[sampleIdx],
				PresentationOffset: presOffsets[sampleIdx],
				IsSync:             isSync,
			})
			pos += int64(size)
			sampleIdx++
		}
	}
	return SampleOffsetTable{Samples: samples}, nil
}

func valueOrEmptyStts(s *box.Stts) []box.SttsEntry {
	if s == nil {
		return nil
	}
	return s.Entries
}

// chunkPartition is one contiguous run of chunks assigned to a goroutine by
// ReconstructParallel.
type chunkPartition struct {
	firstChunk     int // 0-based index into Stco.ChunkOffsets
	lastChunk      int // exclusive
	firstSampleIdx int
}

// ReconstructParallel is the concurrent variant of Reconstruct, used once a
// track's chunk count exceeds ParallelChunkThreshold. It precomputes each
// partition's starting sample index sequentially (cheap: one pass over
// stsc), then expands each partition's samples on its own goroutine into a
// pre-sized slice, preserving chunk order in the final output without
// locking.
func ReconstructParallel(t SampleTableBoxes) (SampleOffsetTable, error) {
	if t.Stsz == nil || t.Stsc == nil || t.Stco == nil {
		return SampleOffsetTable{}, errors.WithStack(ErrIncompleteSampleTable)
	}
	numChunks := len(t.Stco.ChunkOffsets)
	if numChunks < ParallelChunkThreshold {
		return Reconstruct(t)
	}

	count := int(t.Stsz.SampleCount)
	durations := expandDurations(valueOrEmptyStts(t.Stts), count)
	presOffsets := expandPresentationOffsets(t.Ctts, count)
	syncSamples := syncSet(t.Stss)

	// Sequential pass: samples-per-chunk for every chunk, and each chunk's
	// starting sample index, both cheap relative to per-sample expansion.
	samplesPerChunk := make([]uint32, numChunks)
	startIdx := make([]int, numChunks)
	running := 0
	for i := 0; i < numChunks; i++ {
		n := chunkSampleCount(t.Stsc.Entries, uint32(i+1))
		samplesPerChunk[i] = n
		startIdx[i] = running
		running += int(n)
	}

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	chunksPerWorker := (numChunks + workers - 1) / workers

	partitions := make([]chunkPartition, 0, workers)
	for start := 0; start < numChunks; start += chunksPerWorker {
		end := start + chunksPerWorker
		if end > numChunks {
			end = numChunks
		}
		partitions = append(partitions, chunkPartition{firstChunk: start, lastChunk: end, firstSampleIdx: startIdx[start]})
	}

	results := make([][]SampleOffset, len(partitions))
	var wg sync.WaitGroup
	for pi, p := range partitions {
		wg.Add(1)
		go func(pi int, p chunkPartition) {
			defer wg.Done()
			var out []SampleOffset
			sampleIdx := p.firstSampleIdx
			for c := p.firstChunk; c < p.lastChunk; c++ {
				pos := int64(t.Stco.ChunkOffsets[c])
				for i := uint32(0); i < samplesPerChunk[c] && sampleIdx < count; i++ {
					size := sampleSize(t.Stsz, sampleIdx)
					isSync := syncSamples == nil || syncSamples[uint32(sampleIdx+1)]
					out = append(out, SampleOffset{
						Position:           pos,
						Size:               size,
						Duration:           durations[sampleIdx],
						PresentationOffset: presOffsets[sampleIdx],
						IsSync:             isSync,
					})
					pos += int64(size)
					sampleIdx++
				}
			}
			results[pi] = out
		}(pi, p)
	}
	wg.Wait()

	samples := make([]SampleOffset, 0, count)
	for _, r := range results {
		samples = append(samples, r...)
	}
	return SampleOffsetTable{Samples: samples}, nil
}
