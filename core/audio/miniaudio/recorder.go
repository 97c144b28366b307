// Package miniaudio records utterances from the default microphone.
package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-screening/core/audio"
)

const channels = 1

// Recorder buffers microphone input between Start and Stop.
type Recorder struct {
	// audioContext is only kept to be able to uninitialize it
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	encoding     audio.EncodingInfo

	mu        sync.Mutex
	recording bool
	samples   []byte
}

func NewRecorder() (*Recorder, error) {
	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	r := &Recorder{
		audioContext: audioContext,
		encoding:     audio.GetDefaultEncodingInfo(),
	}

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(r.encoding.SampleRate)
	config.Capture.Format = format
	config.Capture.Channels = channels
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = 480
	config.Periods = 3

	r.device, err = malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(input) < n || n == 0 {
				return
			}
			r.mu.Lock()
			if r.recording {
				r.samples = append(r.samples, input[:n]...)
			}
			r.mu.Unlock()
		},
	})
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	if err := r.device.Start(); err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}
	return r, nil
}

// Start discards anything buffered so far and starts buffering.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = r.samples[:0]
	r.recording = true
}

// Stop ends the utterance and returns it wrapped as WAV.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	samples := r.samples
	r.samples = nil
	r.recording = false
	r.mu.Unlock()

	if len(samples) == 0 {
		return nil, fmt.Errorf("nothing was recorded")
	}
	return audio.WAV(samples, r.encoding, channels)
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) EncodingInfo() audio.EncodingInfo {
	return r.encoding
}

func (r *Recorder) Close() {
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	if r.audioContext != nil {
		_ = r.audioContext.Uninit()
		r.audioContext.Free()
		r.audioContext = nil
	}
}
