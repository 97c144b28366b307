package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// WAV wraps raw samples in a RIFF/WAVE container so speech-to-text services
// can detect the encoding on their own.
func WAV(samples []byte, info EncodingInfo, channels int) ([]byte, error) {
	if info.IsZero() {
		return nil, fmt.Errorf("missing encoding info")
	}
	if channels < 1 {
		channels = 1
	}

	formatCode := info.Format.waveFormatCode()
	if formatCode == 0 {
		return nil, fmt.Errorf("unsupported encoding %q", info.Format.Name())
	}

	sampleSize := info.Format.ByteSize()
	blockAlign := channels * sampleSize
	byteRate := info.SampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)))
	buf.WriteString("RIFF")
	write(buf, uint32(36+len(samples)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	write(buf, uint32(16))
	write(buf, formatCode)
	write(buf, uint16(channels))
	write(buf, uint32(info.SampleRate))
	write(buf, uint32(byteRate))
	write(buf, uint16(blockAlign))
	write(buf, uint16(8*sampleSize))

	buf.WriteString("data")
	write(buf, uint32(len(samples)))
	buf.Write(samples)

	return buf.Bytes(), nil
}

func write(buf *bytes.Buffer, value any) {
	// Writing to a bytes.Buffer does not fail.
	_ = binary.Write(buf, binary.LittleEndian, value)
}
