// Package audio handles synthesized speech clips: WAV fix-up and playback
// through PortAudio.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const wavHeaderSize = 44

var ErrNotWav = errors.New("not a canonical PCM WAV stream")

type WavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// ReadWavHeader decodes the canonical 44 byte header at the start of b.
func ReadWavHeader(b []byte) (WavHeader, error) {
	var h WavHeader
	if len(b) < wavHeaderSize {
		return h, ErrNotWav
	}
	if err := binary.Read(bytes.NewReader(b[:wavHeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("failed to decode WAV header: %w", err)
	}
	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" ||
		string(h.Subchunk1ID[:]) != "fmt " || string(h.Subchunk2ID[:]) != "data" {
		return h, ErrNotWav
	}
	return h, nil
}

// SaveStreamedWav writes a WAV stream produced on a pipe to path. Streamed
// WAV carries placeholder sizes, so the header is patched with the real
// data length before the file is closed.
func SaveStreamedWav(path string, data []byte) error {
	if _, err := ReadWavHeader(data); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}

	return UpdateWavHeader(file, uint32(len(data)-wavHeaderSize))
}

func UpdateWavHeader(file *os.File, dataSize uint32) error {
	// Update ChunkSize (file size - 8)
	if _, err := file.Seek(4, 0); err != nil {
		return fmt.Errorf("failed to seek to ChunkSize: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(dataSize+36)); err != nil {
		return fmt.Errorf("failed to write ChunkSize: %w", err)
	}

	// Update Subchunk2Size (data size)
	if _, err := file.Seek(40, 0); err != nil {
		return fmt.Errorf("failed to seek to Subchunk2Size: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("failed to write Subchunk2Size: %w", err)
	}

	return nil
}
