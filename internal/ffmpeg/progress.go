package ffmpeg

import (
	"math"
	"regexp"
	"strconv"
)

// The media binary reports elapsed position as time=HH:MM:SS.ff tokens on its
// diagnostic stream, and total duration once near the start of a probe run as
// Duration: HH:MM:SS.ff. Both grammars are incidental log output rather than
// a protocol; keep all knowledge of them inside this file.
var (
	clockToken    = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2})\.(\d{2})`)
	durationToken = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})\.(\d{2})`)
)

// ParseDuration scans a probe invocation's full captured output for the
// duration token and returns the total length in seconds. The second return
// is false when no parseable token is present.
func ParseDuration(output string) (float64, bool) {
	m := durationToken.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	return tokenSeconds(m), true
}

// ExtractPercent scans one diagnostic chunk for an elapsed-time token and
// converts it to a 0-100 completion percentage against totalSeconds.
//
// It returns false both when totalSeconds is unknown (<= 0) and when the
// chunk carries no token. Chunks arrive at arbitrary boundaries, so a token
// may be split across two chunks and lost; callers must treat a false return
// as "no update this chunk", never as zero progress.
func ExtractPercent(chunk string, totalSeconds float64) (int, bool) {
	if totalSeconds <= 0 {
		return 0, false
	}
	m := clockToken.FindStringSubmatch(chunk)
	if m == nil {
		return 0, false
	}
	elapsed := tokenSeconds(m)
	return int(math.Round(math.Min(100, elapsed/totalSeconds*100))), true
}

func tokenSeconds(m []string) float64 {
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	frac, _ := strconv.Atoi(m[4])
	return float64(h)*3600 + float64(min)*60 + float64(sec) + float64(frac)/100
}
