package deepgram

import (
	"fmt"

	"github.com/koscakluka/ema-screening/core/audio"
)

// listenEncoding is the encoding and sample_rate pair of the listen query.
type listenEncoding struct {
	name       string
	sampleRate int
}

// listenEncodingFor maps raw audio to the listen query parameters. Companded
// formats are only accepted at 8 kHz.
func listenEncodingFor(info audio.EncodingInfo) (listenEncoding, error) {
	switch info.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return listenEncoding{}, fmt.Errorf("unsupported sample rate %d", info.SampleRate)
	}

	switch info.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if info.SampleRate != 8000 {
			return listenEncoding{}, fmt.Errorf("unsupported sample rate %d for %s encoding", info.SampleRate, info.Format.Name())
		}
	default:
		return listenEncoding{}, fmt.Errorf("unsupported encoding %q", info.Format.Name())
	}

	return listenEncoding{name: info.Format.Name(), sampleRate: info.SampleRate}, nil
}
