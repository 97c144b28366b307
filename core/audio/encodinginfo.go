package audio

// Recordings are captured and sent as 16 kHz linear PCM unless configured
// otherwise.
const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

// EncodingInfo describes raw audio samples.
type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format == ""
}

type encodingFormat string

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

func (e encodingFormat) Name() string {
	return string(e)
}

// ByteSize is the size of one sample, -1 for unknown formats.
func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

// waveFormatCode is the WAVE fmt chunk code of the format, 0 when WAVE has
// none.
func (e encodingFormat) waveFormatCode() uint16 {
	switch e {
	case EncodingLinear16:
		return 1
	case EncodingALaw:
		return 6
	case EncodingMulaw:
		return 7
	}
	return 0
}
