package ffmpeg

import (
	"path/filepath"
	"strconv"
	"strings"
)

const (
	audioSuffix = "_audio.m4a"
	thumbSuffix = "_thumb.jpg"
)

// AudioOutputPath derives the audio artifact path from the input path by
// replacing its extension. The derivation is deterministic: the same input
// always names the same artifact.
func AudioOutputPath(inputPath string) string {
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + audioSuffix
}

// ThumbnailOutputPath derives the thumbnail artifact path from the input path.
func ThumbnailOutputPath(inputPath string) string {
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + thumbSuffix
}

// ProbeArgs invokes the binary with an input and no output, which makes it
// print stream information, including the Duration line, to its diagnostic
// stream and exit.
func ProbeArgs(inputPath string) []string {
	return []string{"-hide_banner", "-i", inputPath}
}

// ExtractAudioArgs demuxes and transcodes the audio track to AAC at the given
// bitrate (e.g. "128k").
func ExtractAudioArgs(inputPath, outputPath, bitrate string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-c:a", "aac",
		"-b:a", bitrate,
		outputPath,
	}
}

// ThumbnailArgs captures a single frame at offsetSeconds into a still image.
func ThumbnailArgs(inputPath, outputPath string, offsetSeconds float64) []string {
	return []string{
		"-y",
		"-ss", strconv.FormatFloat(offsetSeconds, 'f', -1, 64),
		"-i", inputPath,
		"-frames:v", "1",
		outputPath,
	}
}
