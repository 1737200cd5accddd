package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/youpy/go-wav"
)

const framesPerBuffer = 1024

// Player plays WAV clips on an output device. DeviceID 0 selects the host
// default device.
type Player struct {
	DeviceID int
}

func NewPlayer(deviceID int) *Player {
	return &Player{DeviceID: deviceID}
}

// PlayFile plays filename until it ends or ctx is cancelled.
func (p *Player) PlayFile(ctx context.Context, filename string) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)

	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("failed to read WAV format: %w", err)
	}
	channels := int(format.NumChannels)
	if channels < 1 || channels > 2 {
		return fmt.Errorf("unsupported channel count %d", channels)
	}

	done := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(done) }) }

	callback := func(out []int16) {
		samples, err := reader.ReadSamples(uint32(len(out) / channels))
		if err != nil && err != io.EOF {
			slog.Error("Error reading from WAV file", "error", err)
		}
		n := 0
		for _, s := range samples {
			for ch := 0; ch < channels && n < len(out); ch++ {
				out[n] = int16(s.Values[ch])
				n++
			}
		}
		// Fill remaining buffer with silence if needed
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		if err != nil || len(samples) == 0 {
			finish()
		}
	}

	stream, err := p.openStream(channels, float64(format.SampleRate), callback)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = stream.Abort()
		return ctx.Err()
	case <-done:
	}

	return stream.Stop()
}

func (p *Player) openStream(channels int, sampleRate float64, callback func(out []int16)) (*portaudio.Stream, error) {
	if p.DeviceID <= 0 {
		return portaudio.OpenDefaultStream(0, channels, sampleRate, framesPerBuffer, callback)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get audio devices: %w", err)
	}
	if p.DeviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID %d", p.DeviceID)
	}

	device := devices[p.DeviceID]
	if device.MaxOutputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) is not an output device", p.DeviceID, device.Name)
	}

	slog.Debug("Using specified audio device",
		"deviceID", p.DeviceID,
		"deviceName", device.Name,
		"sampleRate", sampleRate,
		"outputChannels", device.MaxOutputChannels)

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}
	return portaudio.OpenStream(params, callback)
}

// Device describes an output device. Index is the value to pass as the
// player's DeviceID.
type Device struct {
	Index             int
	Name              string
	MaxOutputChannels int
	DefaultSampleRate float64
}

// ListOutputDevices returns the devices that can play audio.
func ListOutputDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	outputDevices := make([]Device, 0)
	for i, device := range devices {
		if device.MaxOutputChannels > 0 {
			outputDevices = append(outputDevices, Device{
				Index:             i,
				Name:              device.Name,
				MaxOutputChannels: device.MaxOutputChannels,
				DefaultSampleRate: device.DefaultSampleRate,
			})
		}
	}
	return outputDevices, nil
}
