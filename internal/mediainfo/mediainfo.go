// Package mediainfo derives basic video metadata (duration, pixel
// dimensions) from in-memory file bytes without invoking the external media
// binary. The values annotate the remote record only; progress reporting uses
// the binary's own duration probe instead.
package mediainfo

import "encoding/binary"

// Info is best-effort metadata. Zero values mean "unknown".
type Info struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// Probe walks the MP4/QuickTime box structure looking for the movie header
// (duration) and the first video track header (dimensions). Containers it
// does not understand yield a zero Info, never an error.
func Probe(data []byte) Info {
	moov, ok := findBox(data, "moov")
	if !ok {
		return Info{}
	}

	var info Info
	if mvhd, ok := findBox(moov, "mvhd"); ok {
		info.DurationSeconds = movieDuration(mvhd)
	}
	forEachBox(moov, "trak", func(trak []byte) bool {
		tkhd, ok := findBox(trak, "tkhd")
		if !ok {
			return true
		}
		w, h := trackDimensions(tkhd)
		if w > 0 && h > 0 {
			info.Width, info.Height = w, h
			return false
		}
		return true
	})
	return info
}

// findBox returns the payload of the first box named typ at the top level of
// data.
func findBox(data []byte, typ string) ([]byte, bool) {
	var out []byte
	forEachBox(data, typ, func(payload []byte) bool {
		out = payload
		return false
	})
	return out, out != nil
}

// forEachBox walks sibling boxes in data, invoking fn with the payload of
// each box named typ until fn returns false. Malformed sizes stop the walk.
func forEachBox(data []byte, typ string, fn func(payload []byte) bool) {
	for off := 0; off+8 <= len(data); {
		size := int(binary.BigEndian.Uint32(data[off:]))
		name := string(data[off+4 : off+8])
		header := 8
		switch size {
		case 0:
			// Box extends to end of data.
			size = len(data) - off
		case 1:
			if off+16 > len(data) {
				return
			}
			size64 := binary.BigEndian.Uint64(data[off+8:])
			if size64 > uint64(len(data)-off) {
				return
			}
			size = int(size64)
			header = 16
		}
		if size < header || off+size > len(data) {
			return
		}
		if name == typ {
			if !fn(data[off+header : off+size]) {
				return
			}
		}
		off += size
	}
}

func movieDuration(mvhd []byte) float64 {
	if len(mvhd) < 1 {
		return 0
	}
	var timescale uint32
	var duration uint64
	if mvhd[0] == 1 {
		if len(mvhd) < 32 {
			return 0
		}
		timescale = binary.BigEndian.Uint32(mvhd[20:])
		duration = binary.BigEndian.Uint64(mvhd[24:])
	} else {
		if len(mvhd) < 20 {
			return 0
		}
		timescale = binary.BigEndian.Uint32(mvhd[12:])
		duration = uint64(binary.BigEndian.Uint32(mvhd[16:]))
	}
	if timescale == 0 {
		return 0
	}
	return float64(duration) / float64(timescale)
}

// trackDimensions reads the 16.16 fixed-point width and height from a track
// header box.
func trackDimensions(tkhd []byte) (int, int) {
	if len(tkhd) < 1 {
		return 0, 0
	}
	off := 76
	if tkhd[0] == 1 {
		off = 88
	}
	if len(tkhd) < off+8 {
		return 0, 0
	}
	w := int(binary.BigEndian.Uint32(tkhd[off:]) >> 16)
	h := int(binary.BigEndian.Uint32(tkhd[off+4:]) >> 16)
	return w, h
}
