package convert

import "vidforge/internal/domain"

// Size-tier boundaries for default parameter selection.
const (
	smallInputBytes  = 1 << 20
	mediumInputBytes = 5 << 20
)

// ParamsForSize returns the default encode parameter set for an input of the
// given size. Quality rises monotonically with input size: larger inputs
// never receive a faster-but-lower-quality profile than smaller ones.
func ParamsForSize(size int) domain.EncodeParams {
	params := domain.EncodeParams{
		AudioChannels: 2,
		SampleRate:    44100,
		FastStart:     true,
	}

	switch {
	case size < smallInputBytes:
		params.Preset = "ultrafast"
		params.CRF = 28
		params.AudioBitrate = "64k"
	case size <= mediumInputBytes:
		params.Preset = "ultrafast"
		params.CRF = 26
		params.AudioBitrate = "96k"
	default:
		params.Preset = "veryfast"
		params.CRF = 23
		params.AudioBitrate = "128k"
	}

	return params
}
