package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamedWav(t *testing.T, pcm []byte) []byte {
	t.Helper()
	h := WavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     0x7FFFFFFF,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    22050,
		ByteRate:      22050 * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: 0x7FFFFFFF - 36,
	}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))
	buf.Write(pcm)
	return buf.Bytes()
}

func TestSaveStreamedWavPatchesSizes(t *testing.T) {
	pcm := make([]byte, 100)
	path := filepath.Join(t.TempDir(), "clip.wav")

	require.NoError(t, SaveStreamedWav(path, streamedWav(t, pcm)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	h, err := ReadWavHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), h.Subchunk2Size)
	assert.Equal(t, uint32(136), h.ChunkSize)
	assert.Equal(t, uint32(22050), h.SampleRate)
	assert.Len(t, data, 144)
}

func TestSaveStreamedWavRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	assert.ErrorIs(t, SaveStreamedWav(path, []byte("short")), ErrNotWav)

	junk := make([]byte, 64)
	assert.ErrorIs(t, SaveStreamedWav(path, junk), ErrNotWav)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
