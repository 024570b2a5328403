package engine

import (
	"fmt"
	"strconv"
	"strings"

	"vidforge/internal/domain"
)

// buildConvertArgs assembles the engine argv for one transcode job.
func buildConvertArgs(p domain.EncodeParams, autoTrim bool) []string {
	args := make([]string, 0, 24)
	if autoTrim {
		// Experimental leading-frame trim. Unvalidated against all input
		// sources; callers opt in explicitly.
		args = append(args, "-ss", "0.1")
	}

	args = append(args,
		"-i", inputFileName,
		"-c:v", "libx264",
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.CRF),
		"-c:a", "aac",
		"-b:a", p.AudioBitrate,
		"-ac", strconv.Itoa(p.AudioChannels),
		"-ar", strconv.Itoa(p.SampleRate),
	)
	if p.FastStart {
		args = append(args, "-movflags", "+faststart")
	}

	return append(args, outputFileName)
}

// buildCompositeArgs assembles the engine argv for one composition job.
// Geometry strings are assumed normalized by the orchestrator.
func buildCompositeArgs(opts domain.CompositeOptions) []string {
	filter := fmt.Sprintf("[1:v]scale=%s[fg];[0:v][fg]overlay=%s", opts.Scale, opts.Offset)
	return []string{
		"-i", backgroundFileName,
		"-i", videoFileName,
		"-filter_complex", filter,
		"-s", strings.ReplaceAll(opts.OutputSize, ":", "x"),
		"-c:a", "copy",
		compositeOutputName,
	}
}
