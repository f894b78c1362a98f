package track

import (
	"iter"
	"time"

	"github.com/pkg/errors"

	"github.com/jenslar/mp4nav/box"
)

// SampleReader reads a single sample's payload out of the file backing a
// Track. The facade (root package) implements this over its FileStream;
// track itself never touches file I/O, keeping it testable against
// in-memory sample tables alone.
type SampleReader interface {
	ReadSample(offset int64, size uint32) ([]byte, error)
}

// TrackAttributes is the scalar, always-available description of a track,
// independent of its sample table: identity, timing base, and media kind.
type TrackAttributes struct {
	ID            uint32
	Subtype       box.BoxType // hdlr.handler_type: vide, soun, tmcd, meta, hint, ...
	ComponentName string
	Timescale     uint32
	Duration      time.Duration // tkhd duration, scaled by the movie timescale
	MediaDuration uint64        // mdhd duration, unscaled, in Timescale units
	CreationTime  time.Time
	Width, Height float64 // decoded from tkhd's 16.16 fixed-point track dimensions
	Language      string
	Enabled       bool
	InMovie       bool
	InPreview     bool
}

// tkhdFlag bits, per spec.md's tkhd description.
const (
	tkhdFlagEnabled   = 0x000001
	tkhdFlagInMovie   = 0x000002
	tkhdFlagInPreview = 0x000004
)

// fixed16x16 converts a 16.16 fixed-point value (as used by tkhd's width
// and height) to a float64.
func fixed16x16(v uint32) float64 {
	return float64(v) / 65536.0
}

// quickTimeEpoch is 1904-01-01 UTC, the epoch mvhd/tkhd/mdhd creation and
// modification times are measured from.
var quickTimeEpoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

// Track is a lazily-queryable view over one track of a parsed file: its
// attributes, its reconstructed sample-offset table, and (through reader)
// the ability to pull individual sample payloads on demand.
type Track struct {
	Attrs  TrackAttributes
	Table  SampleOffsetTable
	Stsd   box.Stsd
	reader SampleReader
}

// New builds a Track view from its decoded header boxes and reconstructed
// sample-offset table. movieTimescale is mvhd's timescale: tkhd.Duration is
// expressed in it, unlike sample durations/offsets, which are expressed in
// the track's own mdhd timescale.
func New(tkhd box.Tkhd, mdhd box.Mdhd, hdlr box.Hdlr, movieTimescale uint32, table SampleOffsetTable, stsd box.Stsd, reader SampleReader) Track {
	return Track{
		Attrs: TrackAttributes{
			ID:            tkhd.TrackID,
			Subtype:       hdlr.HandlerType,
			ComponentName: hdlr.ComponentName,
			Timescale:     mdhd.Timescale,
			Duration:      scaledDuration(tkhd.Duration, movieTimescale),
			MediaDuration: mdhd.Duration,
			CreationTime:  quickTimeEpoch.Add(time.Duration(mdhd.CreationTime) * time.Second),
			Width:         fixed16x16(tkhd.Width),
			Height:        fixed16x16(tkhd.Height),
			Language:      mdhd.Language,
			Enabled:       tkhd.Flags&tkhdFlagEnabled != 0,
			InMovie:       tkhd.Flags&tkhdFlagInMovie != 0,
			InPreview:     tkhd.Flags&tkhdFlagInPreview != 0,
		},
		Table:  table,
		Stsd:   stsd,
		reader: reader,
	}
}

// primaryEntry returns this track's first sample description entry, the one
// every movie-level media-kind query projects from.
func (t Track) primaryEntry() (box.SampleEntry, bool) {
	if len(t.Stsd.Entries) == 0 {
		return box.SampleEntry{}, false
	}
	return t.Stsd.Entries[0], true
}

// Format returns this track's primary sample-description format FourCC
// (e.g. avc1, mp4a), per spec.md §4.6's "typed format tag".
func (t Track) Format() (box.BoxType, bool) {
	e, ok := t.primaryEntry()
	if !ok {
		return box.BoxType{}, false
	}
	return e.Format, true
}

// IsVideoFormat reports whether this track's primary sample description
// classifies as video, per spec.md §4.6's stsd-derived media-kind
// predicates (distinct from the handler-subtype-derived IsVideo).
func (t Track) IsVideoFormat() bool {
	e, ok := t.primaryEntry()
	return ok && e.Kind == box.FormatVideo
}

// IsAudioFormat reports whether this track's primary sample description
// classifies as audio.
func (t Track) IsAudioFormat() bool {
	e, ok := t.primaryEntry()
	return ok && e.Kind == box.FormatAudio
}

// IsBinaryFormat reports whether this track's primary sample description
// classifies as binary (neither the video nor audio taxonomy, e.g. tmcd).
func (t Track) IsBinaryFormat() bool {
	e, ok := t.primaryEntry()
	return ok && e.Kind == box.FormatBinary
}

// SampleRate returns this track's primary audio sample-description's
// sample rate in Hz. ok is false if the track has no audio sample entry.
func (t Track) SampleRate() (uint32, bool) {
	e, ok := t.primaryEntry()
	if !ok || e.Kind != box.FormatAudio {
		return 0, false
	}
	return e.SampleRate >> 16, true
}

// Timecode decodes this track's primary sample description as a Tmcd
// record, for a track whose handler subtype is tmcd. ok is false if the
// track has no sample entries or its primary entry isn't tmcd-formatted.
func (t Track) Timecode() (box.Tmcd, bool) {
	e, ok := t.primaryEntry()
	if !ok {
		return box.Tmcd{}, false
	}
	tm, err := e.Tmcd()
	if err != nil {
		return box.Tmcd{}, false
	}
	return tm, true
}

func scaledDuration(units uint64, timescale uint32) time.Duration {
	if timescale == 0 {
		timescale = 1
	}
	return time.Duration(float64(units) / float64(timescale) * float64(time.Second))
}

// IsVideo reports whether this track's handler type is "vide".
func (t Track) IsVideo() bool { return t.Attrs.Subtype == box.BoxType{'v', 'i', 'd', 'e'} }

// IsAudio reports whether this track's handler type is "soun".
func (t Track) IsAudio() bool { return t.Attrs.Subtype == box.BoxType{'s', 'o', 'u', 'n'} }

// IsTimecode reports whether this track's handler type is "tmcd".
func (t Track) IsTimecode() bool { return t.Attrs.Subtype == box.BoxType{'t', 'm', 'c', 'd'} }

// SampleCount returns the number of samples in this track's reconstructed
// offset table.
func (t Track) SampleCount() int { return len(t.Table.Samples) }

// TotalSampleSize returns the summed byte size of every sample in this
// track, without reading any payload.
func (t Track) TotalSampleSize() uint64 {
	var total uint64
	for _, s := range t.Table.Samples {
		total += uint64(s.Size)
	}
	return total
}

// MediaDuration returns the track's mdhd duration scaled to real time by
// its own timescale (not the movie's).
func (t Track) MediaDuration() time.Duration {
	return scaledDuration(t.Attrs.MediaDuration, t.Attrs.Timescale)
}

// FrameRate derives the track's nominal rate as sample count over media
// duration, in samples (frames) per second. ok is false when the track has
// no samples or no duration to divide by.
func (t Track) FrameRate() (float64, bool) {
	if len(t.Table.Samples) == 0 || t.Attrs.MediaDuration == 0 {
		return 0, false
	}
	ts := t.Attrs.Timescale
	if ts == 0 {
		ts = 1
	}
	return float64(len(t.Table.Samples)) * float64(ts) / float64(t.Attrs.MediaDuration), true
}

// Sample is one track sample: its payload (read lazily) plus the timing
// and classification metadata recovered from the sample table.
type Sample struct {
	Index            int
	Position         int64
	Data             []byte
	DecodeTime       time.Duration
	PresentationTime time.Duration
	Duration         time.Duration
	Size             uint32
	IsSync           bool
}

// Timestamps iterates (decode time, presentation time) pairs for every
// sample in this track, without reading any sample payload. It is the
// cheap entry point for timeline-only queries (e.g. locating the sample
// nearest a given timestamp).
func (t Track) Timestamps() iter.Seq2[time.Duration, time.Duration] {
	return func(yield func(time.Duration, time.Duration) bool) {
		ts := t.Attrs.Timescale
		if ts == 0 {
			ts = 1
		}
		var cursor uint64
		for _, s := range t.Table.Samples {
			decodeTime := scaledDuration(cursor, ts)
			presentationTime := scaledDuration(uint64(int64(cursor)+int64(s.PresentationOffset)), ts)
			if !yield(decodeTime, presentationTime) {
				return
			}
			cursor += uint64(s.Duration)
		}
	}
}

// Samples iterates this track's samples in order, reading each payload on
// demand through the reader supplied at construction. Stops early (without
// error) if reader is nil, matching the facade's §7 "stop silently on
// first error" navigation convention; callers that need the error should
// use SampleAt directly instead.
func (t Track) Samples() iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		if t.reader == nil {
			return
		}
		ts := t.Attrs.Timescale
		if ts == 0 {
			ts = 1
		}
		var cursor uint64
		for i, s := range t.Table.Samples {
			data, err := t.reader.ReadSample(s.Position, s.Size)
			if err != nil {
				return
			}
			sample := Sample{
				Index:            i,
				Position:         s.Position,
				Data:             data,
				DecodeTime:       scaledDuration(cursor, ts),
				PresentationTime: scaledDuration(uint64(int64(cursor)+int64(s.PresentationOffset)), ts),
				Duration:         scaledDuration(uint64(s.Duration), ts),
				Size:             s.Size,
				IsSync:           s.IsSync,
			}
			if !yield(sample) {
				return
			}
			cursor += uint64(s.Duration)
		}
	}
}

// SampleAt reads a single sample by its 0-based index, surfacing any read
// error instead of stopping an iteration silently.
func (t Track) SampleAt(index int) (Sample, error) {
	if index < 0 || index >= len(t.Table.Samples) {
		return Sample{}, errors.Errorf("track: sample index %d out of range [0, %d)", index, len(t.Table.Samples))
	}
	if t.reader == nil {
		return Sample{}, errors.New("track: no sample reader configured")
	}
	s := t.Table.Samples[index]
	data, err := t.reader.ReadSample(s.Position, s.Size)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "track: read sample %d", index)
	}
	ts := t.Attrs.Timescale
	if ts == 0 {
		ts = 1
	}
	var cursor uint64
	for _, prior := range t.Table.Samples[:index] {
		cursor += uint64(prior.Duration)
	}
	return Sample{
		Index:            index,
		Position:         s.Position,
		Data:             data,
		DecodeTime:       scaledDuration(cursor, ts),
		PresentationTime: scaledDuration(uint64(int64(cursor)+int64(s.PresentationOffset)), ts),
		Duration:         scaledDuration(uint64(s.Duration), ts),
		Size:             s.Size,
		IsSync:           s.IsSync,
	}, nil
}
