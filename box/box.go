// Package box implements decoding of ISO Base Media / QuickTime ("MP4")
// boxes: the dual-stream reader, the atom header codec, tree navigation,
// and typed decoders for the well-known box set.
package box

// BoxType is a 4-byte box type identifier (FourCC). Bytes are not required
// to be printable ASCII; String renders them as ISO-8859-1 code points.
type BoxType [4]byte

func (t BoxType) String() string {
	return decodeISO8859_1(t[:])
}

// IsZero reports whether t is four zero bytes, the trailing-padding
// pattern some producers leave inside udta after its last real child.
func (t BoxType) IsZero() bool { return t == BoxType{} }

// Known box types.
var (
	TypeFtyp = BoxType{'f', 't', 'y', 'p'} // File type and compatibility
	TypeStyp = BoxType{'s', 't', 'y', 'p'} // Segment type (fragmented MP4)
)

// Movie structure boxes (moov and children).
var (
	TypeMoov = BoxType{'m', 'o', 'o', 'v'} // Movie metadata container
	TypeMvhd = BoxType{'m', 'v', 'h', 'd'} // Movie header (timescale, duration)
	TypeTrak = BoxType{'t', 'r', 'a', 'k'} // Track container
	TypeTkhd = BoxType{'t', 'k', 'h', 'd'} // Track header (ID, dimensions)
	TypeTref = BoxType{'t', 'r', 'e', 'f'} // Track reference container
	TypeTrgr = BoxType{'t', 'r', 'g', 'r'} // Track grouping indication
	TypeEdts = BoxType{'e', 'd', 't', 's'} // Edit list container
	TypeElst = BoxType{'e', 'l', 's', 't'} // Edit list entries
	TypeMdia = BoxType{'m', 'd', 'i', 'a'} // Media information container
	TypeMdhd = BoxType{'m', 'd', 'h', 'd'} // Media header (timescale, duration)
	TypeHdlr = BoxType{'h', 'd', 'l', 'r'} // Handler reference (vide/soun/tmcd/meta)
	TypeElng = BoxType{'e', 'l', 'n', 'g'} // Extended language tag
	TypeMinf = BoxType{'m', 'i', 'n', 'f'} // Media information container
	TypeVmhd = BoxType{'v', 'm', 'h', 'd'} // Video media header
	TypeSmhd = BoxType{'s', 'm', 'h', 'd'} // Sound media header
	TypeHmhd = BoxType{'h', 'm', 'h', 'd'} // Hint media header
	TypeSthd = BoxType{'s', 't', 'h', 'd'} // Subtitle media header
	TypeNmhd = BoxType{'n', 'm', 'h', 'd'} // Null media header
	TypeDinf = BoxType{'d', 'i', 'n', 'f'} // Data information container
	TypeDref = BoxType{'d', 'r', 'e', 'f'} // Data reference (URL/URN entries)
)

// Sample table boxes (stbl children).
var (
	TypeStbl = BoxType{'s', 't', 'b', 'l'} // Sample table container
	TypeStsd = BoxType{'s', 't', 's', 'd'} // Sample descriptions (codec config)
	TypeStts = BoxType{'s', 't', 't', 's'} // Decoding time-to-sample
	TypeCtts = BoxType{'c', 't', 't', 's'} // Composition time-to-sample
	TypeCslg = BoxType{'c', 's', 'l', 'g'} // Composition to decode timeline mapping
	TypeStsc = BoxType{'s', 't', 's', 'c'} // Sample-to-chunk mapping
	TypeStsz = BoxType{'s', 't', 's', 'z'} // Sample sizes
	TypeStz2 = BoxType{'s', 't', 'z', '2'} // Compact sample sizes
	TypeStco = BoxType{'s', 't', 'c', 'o'} // Chunk offsets (32-bit)
	TypeCo64 = BoxType{'c', 'o', '6', '4'} // Chunk offsets (64-bit)
	TypeStss = BoxType{'s', 't', 's', 's'} // Sync sample table (keyframes)
	TypeStsh = BoxType{'s', 't', 's', 'h'} // Shadow sync sample table
	TypePadb = BoxType{'p', 'a', 'd', 'b'} // Padding bits
	TypeStdp = BoxType{'s', 't', 'd', 'p'} // Sample degradation priority
	TypeSdtp = BoxType{'s', 'd', 't', 'p'} // Sample dependency type
	TypeSbgp = BoxType{'s', 'b', 'g', 'p'} // Sample-to-group
	TypeSgpd = BoxType{'s', 'g', 'p', 'd'} // Sample group description
	TypeSubs = BoxType{'s', 'u', 'b', 's'} // Sub-sample information
	TypeSaiz = BoxType{'s', 'a', 'i', 'z'} // Sample auxiliary information sizes
	TypeSaio = BoxType{'s', 'a', 'i', 'o'} // Sample auxiliary information offsets
)

// Fragment boxes (moof and children, mvex). Carried for completeness; the
// sample-offset reconstructor (package track) only operates on non-fragmented
// stbl tables, per spec.
var (
	TypeMvex = BoxType{'m', 'v', 'e', 'x'}
	TypeMehd = BoxType{'m', 'e', 'h', 'd'}
	TypeTrex = BoxType{'t', 'r', 'e', 'x'}
	TypeLeva = BoxType{'l', 'e', 'v', 'a'}
	TypeMoof = BoxType{'m', 'o', 'o', 'f'}
	TypeMfhd = BoxType{'m', 'f', 'h', 'd'}
	TypeTraf = BoxType{'t', 'r', 'a', 'f'}
	TypeTfhd = BoxType{'t', 'f', 'h', 'd'}
	TypeTfdt = BoxType{'t', 'f', 'd', 't'}
	TypeTrun = BoxType{'t', 'r', 'u', 'n'}
	TypeSidx = BoxType{'s', 'i', 'd', 'x'}
	TypeEmsg = BoxType{'e', 'm', 's', 'g'}
)

// Metadata boxes.
var (
	TypeMeta = BoxType{'m', 'e', 't', 'a'}
	TypeUdta = BoxType{'u', 'd', 't', 'a'}
)

// Data boxes.
var (
	TypeMdat = BoxType{'m', 'd', 'a', 't'}
	TypeFree = BoxType{'f', 'r', 'e', 'e'}
	TypeSkip = BoxType{'s', 'k', 'i', 'p'}
)

// Sample entry boxes (children of stsd).
var (
	TypeAvc1 = BoxType{'a', 'v', 'c', '1'}
	TypeHvc1 = BoxType{'h', 'v', 'c', '1'}
	TypeMp4v = BoxType{'m', 'p', '4', 'v'}
	TypeJpeg = BoxType{'j', 'p', 'e', 'g'}
	TypeRaw  = BoxType{'r', 'a', 'w', ' '}
	TypeAvcC = BoxType{'a', 'v', 'c', 'C'}
	TypeHvcC = BoxType{'h', 'v', 'c', 'C'}
	TypeBtrt = BoxType{'b', 't', 'r', 't'}
	TypePasp = BoxType{'p', 'a', 's', 'p'}
	TypeMp4a = BoxType{'m', 'p', '4', 'a'}
	TypeEsds = BoxType{'e', 's', 'd', 's'}
	TypeTmcd = BoxType{'t', 'm', 'c', 'd'}
)

// Audio sample-entry formats beyond mp4a, recognized by the closed taxonomy
// in spec.md §4.4.
var (
	TypeAc3  = BoxType{'a', 'c', '-', '3'}
	TypeEc3  = BoxType{'e', 'c', '-', '3'}
	TypeSowt = BoxType{'s', 'o', 'w', 't'}
	TypeTwos = BoxType{'t', 'w', 'o', 's'}
	TypeUlaw = BoxType{'u', 'l', 'a', 'w'}
	TypeAlaw = BoxType{'a', 'l', 'a', 'w'}
)

// IsFullBox returns true if the box type has version and flags fields.
func IsFullBox(t BoxType) bool {
	switch t {
	case TypeMvhd, TypeTkhd, TypeMdhd, TypeHdlr,
		TypeVmhd, TypeSmhd, TypeDref, TypeStsd,
		TypeStts, TypeCtts, TypeStsc, TypeStsz,
		TypeStco, TypeCo64, TypeStss, TypeElst,
		TypeMeta, TypeEsds, TypeMehd, TypeTrex,
		TypeMfhd, TypeTfhd, TypeTfdt, TypeTrun,
		TypeSbgp, TypeSgpd, TypeSaiz, TypeSaio,
		TypeCslg, TypeSdtp, TypeSidx, TypeEmsg:
		return true
	}
	return false
}

// containerTypes is the closed container set: the atoms whose payload is a
// sequence of child atoms for tree-walk purposes; every other FourCC is a
// leaf. The source this module is grounded on migrates this list across
// revisions (udta joins later); this keeps the later definition, in one
// place.
var containerTypes = map[BoxType]bool{
	TypeMoov: true, TypeTrak: true, TypeTref: true, TypeEdts: true,
	TypeMdia: true, TypeMinf: true, TypeDinf: true, TypeStbl: true,
	TypeUdta: true,
}

// IsContainerBox returns true if the box type is a container that holds
// child boxes rather than an opaque leaf record.
func IsContainerBox(t BoxType) bool {
	return containerTypes[t]
}

// FormatKind classifies a sample-description format FourCC for stsd.
type FormatKind int

const (
	FormatBinary FormatKind = iota
	FormatVideo
	FormatAudio
)

var videoFormats = map[BoxType]bool{
	TypeAvc1: true, TypeHvc1: true, TypeMp4v: true, TypeJpeg: true, TypeRaw: true,
}

var audioFormats = map[BoxType]bool{
	TypeMp4a: true, TypeAc3: true, TypeEc3: true, TypeSowt: true, TypeTwos: true,
	TypeUlaw: true, TypeAlaw: true,
}

// ClassifyFormat returns the FormatKind for a sample-description entry's
// format FourCC, per the closed taxonomy in spec.md §4.4.
func ClassifyFormat(format BoxType) FormatKind {
	if videoFormats[format] {
		return FormatVideo
	}
	if audioFormats[format] {
		return FormatAudio
	}
	return FormatBinary
}
