package detector

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// signatures of payloads commonly smuggled inside or after media files.
var signatures = []struct {
	name  string
	magic []byte
}{
	{"ZIP archive", []byte("PK\x03\x04")},
	{"RAR archive", []byte("Rar!\x1a\x07")},
	{"7z archive", []byte("7z\xbc\xaf\x27\x1c")},
	{"PDF document", []byte("%PDF-")},
	{"ELF executable", []byte("\x7fELF")},
	{"PE executable", []byte("MZ\x90\x00\x03\x00")},
	{"PNG image", []byte("\x89PNG\r\n\x1a\n")},
	{"shell script", []byte("#!/bin/")},
}

type embedded struct {
	name   string
	offset int
}

// findEmbedded reports signatures found at or after offset from. Offset 0 is
// never reported since that is the file's own header.
func findEmbedded(data []byte, from int) []embedded {
	if from < 1 {
		from = 1
	}
	if from >= len(data) {
		return nil
	}
	var out []embedded
	for _, sig := range signatures {
		if i := bytes.Index(data[from:], sig.magic); i >= 0 {
			out = append(out, embedded{name: sig.name, offset: from + i})
		}
	}
	return out
}

// meaningful reports whether trailing bytes hold anything but padding.
func meaningful(trailing []byte) bool {
	if len(trailing) < 16 {
		return false
	}
	for _, b := range trailing {
		if b != 0x00 && b != 0xFF {
			return true
		}
	}
	return false
}

// appendedAfter returns the offset where a file's own format ends, or -1
// when the format is not recognized.
func appendedAfter(data []byte) int {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return pngEnd(data)
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		if i := bytes.LastIndex(data, []byte{0xFF, 0xD9}); i >= 0 {
			return i + 2
		}
	case bytes.HasPrefix(data, []byte("GIF8")):
		if i := bytes.LastIndexByte(data, 0x3B); i >= 0 {
			return i + 1
		}
	case bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12:
		return riffEnd(data)
	}
	return -1
}

// pngEnd walks PNG chunks up to and including IEND.
func pngEnd(data []byte) int {
	off := 8
	for off+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		next := off + 12 + length
		if length < 0 || next > len(data) {
			return -1
		}
		if typ == "IEND" {
			return next
		}
		off = next
	}
	return -1
}

// riffEnd uses the RIFF size field (WAV, AVI, WebP).
func riffEnd(data []byte) int {
	size := int(binary.LittleEndian.Uint32(data[4:8]))
	end := 8 + size
	if size%2 == 1 {
		end++
	}
	if end > len(data) {
		return -1
	}
	return end
}

// inspectContainer adds findings for data appended after the format's end
// and for foreign file signatures. It returns the end offset it used.
func inspectContainer(a *Analysis, data []byte) int {
	end := appendedAfter(data)
	if end >= 0 && end < len(data) && meaningful(data[end:]) {
		trailing := len(data) - end
		a.AddFinding("Data appended after end of file", 0.9,
			fmt.Sprintf("%d bytes after offset %d", trailing, end))
		a.Details["appended_bytes"] = trailing
		a.raise(0.9)
	}

	from := 1
	if end >= 0 {
		// Only the tail is scanned when the end is known.
		from = end
	}
	for _, e := range findEmbedded(data, from) {
		a.AddFinding("Embedded "+e.name, 0.85, fmt.Sprintf("signature at offset %d", e.offset))
		a.raise(0.85)
	}
	return end
}
