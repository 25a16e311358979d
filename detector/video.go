package detector

import (
	"context"
	"encoding/binary"
	"fmt"
)

// largeFreeBox is the size above which a free/skip box is reported.
const largeFreeBox = 64 << 10

// boxTypes are the top-level ISO-BMFF boxes expected in mp4, mov and m4v files.
var boxTypes = map[string]bool{
	"ftyp": true, "moov": true, "mdat": true, "free": true, "skip": true,
	"wide": true, "pdin": true, "moof": true, "mfra": true, "meta": true,
	"uuid": true, "sidx": true, "styp": true, "emsg": true, "prft": true,
	"udta": true, "pnot": true, "ssix": true,
}

type box struct {
	typ    string
	offset int
	size   int
}

// VideoDetector inspects video containers for hidden data. Frames are not
// decoded.
type VideoDetector struct{}

func NewVideoDetector() (Detector, error) {
	return &VideoDetector{}, nil
}

func (d *VideoDetector) Name() string {
	return "video-container"
}

func (d *VideoDetector) Analyze(ctx context.Context, data []byte, filename string) (*Analysis, error) {
	if len(data) == 0 {
		return nil, ErrUndecodable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boxes, end, ok := walkBoxes(data)
	if !ok {
		a := newAnalysis()
		a.Score = 0.15
		a.Details["format"] = "other"
		a.Details["byte_entropy"] = byteEntropy(data)
		inspectContainer(a, data)
		return a, nil
	}

	a := newAnalysis()
	a.Score = 0.1
	a.Details["format"] = "isobmff"
	a.Details["boxes"] = len(boxes)

	for _, b := range boxes {
		switch {
		case b.typ == "free" || b.typ == "skip":
			if b.size <= largeFreeBox {
				continue
			}
			score := 0.6
			if byteEntropy(data[b.offset+8:b.offset+b.size]) > 7.5 {
				score = 0.8
			}
			a.AddFinding("Oversized "+b.typ+" box", score,
				fmt.Sprintf("%d bytes at offset %d", b.size, b.offset))
			a.raise(score)
		case !boxTypes[b.typ]:
			a.AddFinding("Unknown top-level box", 0.5,
				fmt.Sprintf("%q, %d bytes at offset %d", b.typ, b.size, b.offset))
			a.raise(0.5)
		}
	}

	if end < len(data) && meaningful(data[end:]) {
		trailing := len(data) - end
		a.AddFinding("Data appended after last box", 0.9,
			fmt.Sprintf("%d bytes after offset %d", trailing, end))
		a.Details["appended_bytes"] = trailing
		a.raise(0.9)
	}
	for _, e := range findEmbedded(data, end) {
		a.AddFinding("Embedded "+e.name, 0.85, fmt.Sprintf("signature at offset %d", e.offset))
		a.raise(0.85)
	}
	return a, nil
}

// walkBoxes reads top-level boxes until the data no longer parses as one.
// It returns the end of the last whole box and false when the first box is
// not ftyp.
func walkBoxes(data []byte) ([]box, int, bool) {
	var boxes []box
	off := 0
	for off+8 <= len(data) {
		size := int(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		header := 8
		switch size {
		case 0:
			size = len(data) - off
		case 1:
			if off+16 > len(data) {
				return boxes, off, len(boxes) > 0
			}
			large := binary.BigEndian.Uint64(data[off+8:])
			if large > uint64(len(data)-off) {
				return boxes, off, len(boxes) > 0
			}
			size = int(large)
			header = 16
		}
		if size < header || off+size > len(data) || !printable(typ) {
			break
		}
		if len(boxes) == 0 && typ != "ftyp" {
			return nil, 0, false
		}
		boxes = append(boxes, box{typ: typ, offset: off, size: size})
		off += size
	}
	if len(boxes) == 0 {
		return nil, 0, false
	}
	return boxes, off, true
}

func printable(typ string) bool {
	for i := 0; i < len(typ); i++ {
		if typ[i] < 0x20 || typ[i] > 0x7e {
			return false
		}
	}
	return true
}
