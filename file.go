// Package mp4nav opens an MP4/QuickTime file and exposes its movie and
// track structure: a thin facade over the box and track packages that
// finds moov, decodes the boxes every caller needs, and reconstructs each
// track's sample layout.
package mp4nav

import (
	"iter"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jenslar/mp4nav/box"
	"github.com/jenslar/mp4nav/track"
)

// scaledDuration converts a duration expressed in timescale units to a
// time.Duration, mirroring the same conversion package track applies to
// per-sample timing.
func scaledDuration(units uint64, timescale uint32) time.Duration {
	if timescale == 0 {
		timescale = 1
	}
	return time.Duration(float64(units) / float64(timescale) * float64(time.Second))
}

// ErrMoovNotFound is returned by Open/OpenWithCapacity when no moov atom
// is found at the top level of the file.
var ErrMoovNotFound = errors.New("mp4nav: moov atom not found")

// trackRecord bundles a track view with the raw header boxes and primary
// sample-description format it was built from, so the facade's
// movie-level convenience accessors (Resolution, VideoFormat, ...) don't
// need to re-walk the tree.
type trackRecord struct {
	Track  track.Track
	Tkhd   box.Tkhd
	Mdhd   box.Mdhd
	Hdlr   box.Hdlr
	Format box.BoxType // primary stsd entry format, zero value if stsd had no entries
	Stsd   box.Stsd
}

// File is an opened MP4/QuickTime file: its decoded movie header, its
// tracks, and the file handle sample payloads are read from.
type File struct {
	f  *os.File
	fs *box.FileStream

	moovHeader box.Header
	mvhd       box.Mvhd
	ftyp       *box.Ftyp
	mdat       box.Mdat // payload span of the first mdat; zero Size if none seen
	tracks     []trackRecord

	mu sync.Mutex // guards fs, since reads reposition its cursor
}

// Open opens path and parses its movie structure using
// box.DefaultBufferSize for the underlying file stream.
func Open(path string) (*File, error) {
	return OpenWithCapacity(path, box.DefaultBufferSize)
}

// OpenWithCapacity is Open with an explicit FileStream buffer capacity.
func OpenWithCapacity(path string, capacity int) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fs, err := box.NewFileStream(f, capacity)
	if err != nil {
		f.Close()
		return nil, err
	}

	file := &File{f: f, fs: fs}
	if err := file.parse(); err != nil {
		f.Close()
		return nil, err
	}
	return file, nil
}

// Close releases the underlying file handle.
func (file *File) Close() error {
	return file.f.Close()
}

// ReadSample implements track.SampleReader over this file's FileStream.
// When the file's mdat span is known, a sample read falling outside it is
// rejected rather than returning bytes from some other box.
func (file *File) ReadSample(offset int64, size uint32) ([]byte, error) {
	file.mu.Lock()
	defer file.mu.Unlock()
	if file.mdat.Size > 0 {
		if offset < file.mdat.Offset || offset+int64(size) > file.mdat.Offset+file.mdat.Size {
			return nil, errors.Wrapf(box.ErrBounds,
				"mp4nav: sample [%d, %d) outside mdat [%d, %d)",
				offset, offset+int64(size), file.mdat.Offset, file.mdat.Offset+file.mdat.Size)
		}
	}
	if _, err := file.fs.Seek(box.SeekAbs(offset)); err != nil {
		return nil, err
	}
	return file.fs.ReadBytes(box.Sized(int(size)))
}

// parse locates moov, reads it into memory, and decodes mvhd plus every
// track.
func (file *File) parse() error {
	// One top-level pass records everything the facade needs later: the
	// first moov's payload, the first ftyp, and the first mdat's span (for
	// the opportunistic sample-read bounds check).
	sc := box.NewScanner(file.fs)
	var moovPayload []byte
	found := false
	for sc.Next() {
		switch sc.Entry().Type {
		case box.TypeFtyp:
			if file.ftyp != nil {
				continue
			}
			data, err := sc.ReadBody()
			if err != nil {
				return errors.Wrap(err, "mp4nav: read ftyp payload")
			}
			ft, err := box.DecodeFtyp(sc.Entry().Type, data)
			if err != nil {
				return errors.Wrap(err, "mp4nav: decode ftyp")
			}
			file.ftyp = &ft
		case box.TypeMoov:
			if found {
				continue
			}
			var err error
			moovPayload, err = sc.ReadBody()
			if err != nil {
				return errors.Wrap(err, "mp4nav: read moov payload")
			}
			file.moovHeader = sc.Entry()
			found = true
		case box.TypeMdat:
			if file.mdat.Size == 0 {
				file.mdat = box.Mdat{Offset: sc.Entry().DataOffset(), Size: sc.Entry().DataSize()}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "mp4nav: scan top-level boxes")
	}
	if !found {
		return errors.WithStack(ErrMoovNotFound)
	}

	// mvhd must precede every trak; bail out as soon as a trak is seen
	// rather than scanning the rest of moov for a box that isn't there.
	r := box.NewReader(moovPayload)
	if _, err := r.FindHeaderUntil(box.TypeMvhd, box.TypeTrak); err != nil {
		return errors.Wrap(err, "mp4nav: find mvhd")
	}
	mvhdData, err := r.Data()
	if err != nil {
		return errors.Wrap(err, "mp4nav: read mvhd")
	}
	file.mvhd, err = box.DecodeMvhd(r.Type(), mvhdData)
	if err != nil {
		return errors.Wrap(err, "mp4nav: decode mvhd")
	}

	// Rewind to the top of moov's children to walk every trak.
	r = box.NewReader(moovPayload)
	for r.Next() {
		if r.Type() != box.TypeTrak {
			continue
		}
		if err := r.Enter(); err != nil {
			return errors.Wrap(err, "mp4nav: enter trak")
		}
		rec, err := file.parseTrack(r)
		if err != nil {
			if exitErr := r.Exit(); exitErr != nil {
				return errors.Wrap(exitErr, "mp4nav: exit trak after track parse error")
			}
			return errors.Wrap(err, "mp4nav: parse trak")
		}
		if err := r.Exit(); err != nil {
			return errors.Wrap(err, "mp4nav: exit trak")
		}
		file.tracks = append(file.tracks, rec)
	}
	return nil
}

// parseTrack decodes one trak's header boxes and sample table, with r
// positioned at the top of the trak's own children (i.e. just after
// Enter() on the trak atom).
func (file *File) parseTrack(r *box.Reader) (trackRecord, error) {
	var rec trackRecord

	// tkhd must precede mdia within a trak; bail out at the sentinel
	// rather than risk matching something past it.
	if _, err := r.FindHeaderUntil(box.TypeTkhd, box.TypeMdia); err != nil {
		return rec, errors.Wrap(err, "find tkhd")
	}
	tkhdData, err := r.Data()
	if err != nil {
		return rec, errors.Wrap(err, "read tkhd")
	}
	rec.Tkhd, err = box.DecodeTkhd(r.Type(), tkhdData)
	if err != nil {
		return rec, errors.Wrap(err, "decode tkhd")
	}

	if _, err := r.FindHeader(box.TypeMdia); err != nil {
		return rec, errors.Wrap(err, "find mdia")
	}
	if err := r.Enter(); err != nil {
		return rec, errors.Wrap(err, "enter mdia")
	}
	defer r.Exit()

	// mdhd must precede hdlr within mdia; same guard as tkhd above.
	if _, err := r.FindHeaderUntil(box.TypeMdhd, box.TypeHdlr); err != nil {
		return rec, errors.Wrap(err, "find mdhd")
	}
	mdhdData, err := r.Data()
	if err != nil {
		return rec, errors.Wrap(err, "read mdhd")
	}
	rec.Mdhd, err = box.DecodeMdhd(r.Type(), mdhdData)
	if err != nil {
		return rec, errors.Wrap(err, "decode mdhd")
	}

	rec.Hdlr, err = box.FindAtom(r, box.TypeHdlr, box.DecodeHdlr)
	if err != nil {
		return rec, errors.Wrap(err, "find hdlr")
	}

	if _, err := r.FindHeader(box.TypeMinf); err != nil {
		return rec, errors.Wrap(err, "find minf")
	}
	if err := r.Enter(); err != nil {
		return rec, errors.Wrap(err, "enter minf")
	}
	defer r.Exit()

	if _, err := r.FindHeader(box.TypeStbl); err != nil {
		return rec, errors.Wrap(err, "find stbl")
	}
	if err := r.Enter(); err != nil {
		return rec, errors.Wrap(err, "enter stbl")
	}
	defer r.Exit()

	var tables track.SampleTableBoxes
	for r.Next() {
		data, err := r.Data()
		if err != nil {
			return rec, errors.Wrapf(err, "read %s", r.Type())
		}
		switch r.Type() {
		case box.TypeStsd:
			stsd, err := box.DecodeStsd(r.Type(), data)
			if err != nil {
				return rec, errors.Wrap(err, "decode stsd")
			}
			rec.Stsd = stsd
			if len(stsd.Entries) > 0 {
				rec.Format = stsd.Entries[0].Format
			}
		case box.TypeStts:
			s, err := box.DecodeStts(r.Type(), data)
			if err != nil {
				return rec, errors.Wrap(err, "decode stts")
			}
			tables.Stts = &s
		case box.TypeCtts:
			s, err := box.DecodeCtts(r.Type(), data)
			if err != nil {
				return rec, errors.Wrap(err, "decode ctts")
			}
			tables.Ctts = &s
		case box.TypeStsc:
			s, err := box.DecodeStsc(r.Type(), data)
			if err != nil {
				return rec, errors.Wrap(err, "decode stsc")
			}
			tables.Stsc = &s
		case box.TypeStsz:
			s, err := box.DecodeStsz(r.Type(), data)
			if err != nil {
				return rec, errors.Wrap(err, "decode stsz")
			}
			tables.Stsz = &s
		case box.TypeStco:
			s, err := box.DecodeStco(r.Type(), data)
			if err != nil {
				return rec, errors.Wrap(err, "decode stco")
			}
			tables.Stco = &s
		case box.TypeCo64:
			s, err := box.DecodeCo64(r.Type(), data)
			if err != nil {
				return rec, errors.Wrap(err, "decode co64")
			}
			tables.Stco = &s
		case box.TypeStss:
			s, err := box.DecodeStss(r.Type(), data)
			if err != nil {
				return rec, errors.Wrap(err, "decode stss")
			}
			tables.Stss = &s
		}
	}

	var offsetTable track.SampleOffsetTable
	if tables.Stco != nil && len(tables.Stco.ChunkOffsets) > track.ParallelChunkThreshold {
		offsetTable, err = track.ReconstructParallel(tables)
	} else {
		offsetTable, err = track.Reconstruct(tables)
	}
	if err != nil {
		return rec, errors.Wrap(err, "reconstruct sample offsets")
	}

	rec.Track = track.New(rec.Tkhd, rec.Mdhd, rec.Hdlr, file.mvhd.Timescale, offsetTable, rec.Stsd, file)
	return rec, nil
}

// Mvhd returns the decoded movie header box.
func (file *File) Mvhd() box.Mvhd { return file.mvhd }

// Ftyp returns the decoded file-type box. ok is false for the rare file
// that carries no ftyp at all (early QuickTime producers).
func (file *File) Ftyp() (box.Ftyp, bool) {
	if file.ftyp == nil {
		return box.Ftyp{}, false
	}
	return *file.ftyp, true
}

// MajorBrand returns ftyp's major brand.
func (file *File) MajorBrand() (box.BoxType, bool) {
	if file.ftyp == nil {
		return box.BoxType{}, false
	}
	return file.ftyp.MajorBrand, true
}

// CompatibleBrands returns ftyp's compatible-brand list, nil if the file
// has no ftyp.
func (file *File) CompatibleBrands() []box.BoxType {
	if file.ftyp == nil {
		return nil
	}
	return file.ftyp.CompatibleBrands
}

// Mdat returns the payload span of the file's first mdat box. ok is false
// if the scan saw none (metadata-only files).
func (file *File) Mdat() (box.Mdat, bool) {
	return file.mdat, file.mdat.Size > 0
}

// Timescale returns the movie timescale, in units per second.
func (file *File) Timescale() uint32 { return file.mvhd.Timescale }

// Duration returns the movie's overall duration.
func (file *File) Duration() time.Duration {
	return scaledDuration(file.mvhd.Duration, file.mvhd.Timescale)
}

// FindHeader scans the file's top-level atoms from the start for the first
// one of the given type. It returns box.ErrEndOfFile (wrapped) when no
// atom matches before end of file.
func (file *File) FindHeader(t box.BoxType) (box.Header, error) {
	file.mu.Lock()
	defer file.mu.Unlock()
	if _, err := file.fs.Seek(box.SeekAbs(0)); err != nil {
		return box.Header{}, err
	}
	sc := box.NewScanner(file.fs)
	for sc.Next() {
		if sc.Entry().Type == t {
			return sc.Entry(), nil
		}
	}
	if err := sc.Err(); err != nil {
		return box.Header{}, err
	}
	return box.Header{}, errors.Wrapf(box.ErrEndOfFile, "mp4nav: %s not found", t)
}

// quickTimeEpoch is 1904-01-01 UTC, the epoch mvhd's creation/modification
// times are measured from.
var quickTimeEpoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

// CreationTime returns the movie's creation time, decoded from mvhd.
func (file *File) CreationTime() time.Time {
	return quickTimeEpoch.Add(time.Duration(file.mvhd.CreationTime) * time.Second)
}

// Tracks returns every track found in the file, in trak order.
func (file *File) Tracks() []track.Track {
	out := make([]track.Track, len(file.tracks))
	for i, rec := range file.tracks {
		out[i] = rec.Track
	}
	return out
}

// Track looks up a single track by identifier: a uint32/int track ID, a
// string component name, or a box.BoxType handler subtype. Returns false
// if no track matches.
func (file *File) Track(ident any) (track.Track, bool) {
	for _, rec := range file.tracks {
		switch v := ident.(type) {
		case uint32:
			if rec.Track.Attrs.ID == v {
				return rec.Track, true
			}
		case int:
			if rec.Track.Attrs.ID == uint32(v) {
				return rec.Track, true
			}
		case string:
			if rec.Track.Attrs.ComponentName == v {
				return rec.Track, true
			}
		case box.BoxType:
			if rec.Track.Attrs.Subtype == v {
				return rec.Track, true
			}
		}
	}
	return track.Track{}, false
}

// firstByKind returns the first trackRecord whose handler subtype matches
// kind.
func (file *File) firstByKind(kind box.BoxType) (trackRecord, bool) {
	for _, rec := range file.tracks {
		if rec.Hdlr.HandlerType == kind {
			return rec, true
		}
	}
	return trackRecord{}, false
}

// Resolution returns the first video track's pixel dimensions, as encoded
// in its tkhd (which may differ from the coded picture size declared in
// its sample entry). ok is false if the file has no video track.
func (file *File) Resolution() (width, height float64, ok bool) {
	rec, found := file.firstByKind(box.BoxType{'v', 'i', 'd', 'e'})
	if !found {
		return 0, 0, false
	}
	return rec.Track.Attrs.Width, rec.Track.Attrs.Height, true
}

// FrameRate returns the first video track's nominal frame rate (sample
// count over media duration; see track.Track.FrameRate). ok is false if
// the file has no video track or the track has nothing to divide.
func (file *File) FrameRate() (fps float64, ok bool) {
	rec, found := file.firstByKind(box.BoxType{'v', 'i', 'd', 'e'})
	if !found {
		return 0, false
	}
	return rec.Track.FrameRate()
}

// VideoFormat returns the first video track's sample-description format
// FourCC (e.g. avc1, hvc1).
func (file *File) VideoFormat() (box.BoxType, bool) {
	rec, found := file.firstByKind(box.BoxType{'v', 'i', 'd', 'e'})
	if !found {
		return box.BoxType{}, false
	}
	return rec.Format, true
}

// AudioFormat returns the first audio track's sample-description format
// FourCC (e.g. mp4a).
func (file *File) AudioFormat() (box.BoxType, bool) {
	rec, found := file.firstByKind(box.BoxType{'s', 'o', 'u', 'n'})
	if !found {
		return box.BoxType{}, false
	}
	return rec.Format, true
}

// SampleRate returns the first audio track's sample rate in Hz, decoded
// from its stsd audio sample entry.
func (file *File) SampleRate() (uint32, bool) {
	rec, found := file.firstByKind(box.BoxType{'s', 'o', 'u', 'n'})
	if !found || len(rec.Stsd.Entries) == 0 {
		return 0, false
	}
	return rec.Stsd.Entries[0].SampleRate >> 16, true
}

// All iterates every top-level atom of the file (ftyp, moov, mdat, free,
// ...), stopping silently at the first decode error encountered, per this
// module's navigation convention of surfacing state through Tracks/Track
// rather than failing a read loop outright.
func (file *File) All() iter.Seq[box.Header] {
	return func(yield func(box.Header) bool) {
		file.mu.Lock()
		defer file.mu.Unlock()
		if _, err := file.fs.Seek(box.SeekAbs(0)); err != nil {
			return
		}
		sc := box.NewScanner(file.fs)
		for sc.Next() {
			if !yield(sc.Entry()) {
				return
			}
		}
	}
}
