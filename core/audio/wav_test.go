package audio

import (
	"encoding/binary"
	"testing"
)

func TestWAVHeader(t *testing.T) {
	samples := make([]byte, 3200)
	wav, err := WAV(samples, GetDefaultEncodingInfo(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(wav) != wavHeaderSize+len(samples) {
		t.Fatalf("expected %d bytes, got %d", wavHeaderSize+len(samples), len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("unexpected chunk ids %q", wav[:40])
	}
	if size := binary.LittleEndian.Uint32(wav[4:8]); size != uint32(36+len(samples)) {
		t.Errorf("unexpected riff size %d", size)
	}
	if format := binary.LittleEndian.Uint16(wav[20:22]); format != 1 {
		t.Errorf("expected pcm format, got %d", format)
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != DefaultSampleRate {
		t.Errorf("unexpected sample rate %d", rate)
	}
	if byteRate := binary.LittleEndian.Uint32(wav[28:32]); byteRate != 2*DefaultSampleRate {
		t.Errorf("unexpected byte rate %d", byteRate)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Errorf("unexpected bits per sample %d", bits)
	}
	if dataSize := binary.LittleEndian.Uint32(wav[40:44]); dataSize != uint32(len(samples)) {
		t.Errorf("unexpected data size %d", dataSize)
	}
}

func TestWAVRejectsMissingEncoding(t *testing.T) {
	if _, err := WAV([]byte{0, 0}, EncodingInfo{}, 1); err == nil {
		t.Fatalf("expected error for missing encoding info")
	}
}
