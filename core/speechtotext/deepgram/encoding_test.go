package deepgram

import (
	"testing"

	"github.com/koscakluka/ema-screening/core/audio"
)

func TestListenEncodingRejectsUnsupportedAudio(t *testing.T) {
	testCases := []struct {
		name string
		info audio.EncodingInfo
	}{
		{name: "odd sample rate", info: audio.EncodingInfo{SampleRate: 11025, Format: audio.EncodingLinear16}},
		{name: "wideband mulaw", info: audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingMulaw}},
		{name: "wideband alaw", info: audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingALaw}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := listenEncodingFor(testCase.info); err == nil {
				t.Fatalf("expected %+v to be rejected", testCase.info)
			}
		})
	}

	encoding, err := listenEncodingFor(audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if encoding.name != "mulaw" || encoding.sampleRate != 8000 {
		t.Fatalf("unexpected encoding %+v", encoding)
	}
}
