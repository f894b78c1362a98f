package box

import "github.com/pkg/errors"

// Descriptor tags from ISO/IEC 14496-1, the subset esds payloads actually
// use in practice.
const (
	tagESDescr         = 0x03
	tagDecoderConfig   = 0x04
	tagDecoderSpecific = 0x05
	tagSLConfig        = 0x06
)

// Descriptor is one node of the esds descriptor tree: a tag, its own
// payload (excluding nested descriptors), and any children.
type Descriptor struct {
	Tag      byte
	Payload  []byte
	Children []Descriptor
}

// readDescriptorLength implements the tree's variable-length size field:
// up to 4 bytes, each contributing 7 bits, continuing while the top bit is
// set.
func readDescriptorLength(data []byte) (length int, consumed int, err error) {
	for consumed < 4 {
		if consumed >= len(data) {
			return 0, 0, errors.Wrap(ErrShortRead, "descriptor: length field truncated")
		}
		b := data[consumed]
		consumed++
		length = (length << 7) | int(b&0x7f)
		if b&0x80 == 0 {
			return length, consumed, nil
		}
	}
	return 0, 0, errors.New("descriptor: length field longer than 4 bytes")
}

// parseDescriptor decodes one descriptor (tag + length + payload) from the
// front of data, recursing into known container tags (ESDescr,
// DecoderConfigDescr) whose payload itself holds nested descriptors.
func parseDescriptor(data []byte) (Descriptor, int, error) {
	if len(data) < 2 {
		return Descriptor{}, 0, errors.Wrap(ErrShortRead, "descriptor: header truncated")
	}
	tag := data[0]
	length, lenBytes, err := readDescriptorLength(data[1:])
	if err != nil {
		return Descriptor{}, 0, err
	}
	start := 1 + lenBytes
	end := start + length
	if end > len(data) {
		return Descriptor{}, 0, errors.Wrap(ErrShortRead, "descriptor: payload overruns available bytes")
	}
	payload := data[start:end]

	d := Descriptor{Tag: tag}
	switch tag {
	case tagESDescr:
		// ES_ID(2) + flags(1) [+ optional fields per flags] precede nested
		// descriptors; skip the fixed prefix conservatively.
		if len(payload) < 3 {
			d.Payload = payload
			break
		}
		flags := payload[2]
		off := 3
		if flags&0x80 != 0 { // streamDependenceFlag
			off += 2
		}
		if flags&0x40 != 0 { // URL_Flag
			if off < len(payload) {
				urlLen := int(payload[off])
				off += 1 + urlLen
			}
		}
		if flags&0x20 != 0 { // OCRstreamFlag
			off += 2
		}
		if off > len(payload) {
			d.Payload = payload
			break
		}
		d.Payload = payload[:off]
		children, err := parseDescriptorChildren(payload[off:])
		if err != nil {
			return Descriptor{}, 0, err
		}
		d.Children = children
	case tagDecoderConfig:
		if len(payload) < 13 {
			d.Payload = payload
			break
		}
		d.Payload = payload[:13]
		children, err := parseDescriptorChildren(payload[13:])
		if err != nil {
			return Descriptor{}, 0, err
		}
		d.Children = children
	default:
		d.Payload = payload
	}
	return d, end, nil
}

func parseDescriptorChildren(data []byte) ([]Descriptor, error) {
	var out []Descriptor
	off := 0
	for off < len(data) {
		child, n, err := parseDescriptor(data[off:])
		if err != nil {
			return nil, err
		}
		out = append(out, child)
		off += n
	}
	return out, nil
}

// Esds is the elementary stream descriptor box: codec-specific
// configuration for mp4a/mp4v tracks, carried as a tree of descriptors.
type Esds struct {
	Version uint8
	Flags   uint32
	Root    Descriptor
}

func DecodeEsds(t BoxType, data []byte) (Esds, error) {
	if t != TypeEsds {
		return Esds{}, errors.Wrapf(ErrAtomMismatch, "esds: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Esds{}, errors.Wrap(err, "esds")
	}
	root, _, err := parseDescriptor(rest)
	if err != nil {
		return Esds{}, errors.Wrap(err, "esds: descriptor tree")
	}
	return Esds{Version: version, Flags: flags, Root: root}, nil
}

// DecoderSpecificInfo returns the raw DecoderSpecificInfo payload nested
// under ESDescr -> DecoderConfigDescr -> DecoderSpecificInfo, if present
// (this is where an AAC AudioSpecificConfig lives).
func (e Esds) DecoderSpecificInfo() ([]byte, bool) {
	for _, dc := range e.Root.Children {
		if dc.Tag != tagDecoderConfig {
			continue
		}
		for _, si := range dc.Children {
			if si.Tag == tagDecoderSpecific {
				return si.Payload, true
			}
		}
	}
	return nil, false
}
