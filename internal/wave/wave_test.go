package wave_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	goaudiowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdu3142/old-Iara/internal/wave"
)

func TestEncode_StereoDownmixCancelsOut(t *testing.T) {
	t.Parallel()

	buffer := wave.Buffer{
		SampleRate: 16000,
		Channels: [][]float32{
			{1.0, -1.0},
			{-1.0, 1.0},
		},
	}

	encoded, err := wave.Encode(buffer)
	require.NoError(t, err)

	sampleCount := 2
	require.Len(t, encoded, wave.HeaderSize+2*sampleCount)

	assert.Equal(t, "RIFF", string(encoded[0:4]))
	assert.Equal(t, uint32(36+2*sampleCount), binary.LittleEndian.Uint32(encoded[4:8]))
	assert.Equal(t, "WAVE", string(encoded[8:12]))
	assert.Equal(t, "fmt ", string(encoded[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(encoded[20:22]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(encoded[22:24]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(encoded[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(encoded[28:32]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(encoded[34:36]))
	assert.Equal(t, "data", string(encoded[36:40]))
	assert.Equal(t, uint32(2*sampleCount), binary.LittleEndian.Uint32(encoded[40:44]))

	assert.Equal(t, []byte{0, 0, 0, 0}, encoded[wave.HeaderSize:])
	assert.True(t, wave.IsCanonical(encoded))
}

func TestEncode_AsymmetricScalingAndClamping(t *testing.T) {
	t.Parallel()

	encoded, err := wave.Encode(wave.Buffer{
		SampleRate: 8000,
		Channels:   [][]float32{{1.0, -1.0, 2.5, -7, 0}},
	})
	require.NoError(t, err)

	samples := make([]int16, 5)
	for index := range samples {
		offset := wave.HeaderSize + index*2
		samples[index] = int16(binary.LittleEndian.Uint16(encoded[offset : offset+2]))
	}

	assert.Equal(t, []int16{32767, -32768, 32767, -32768, 0}, samples)
}

func TestEncode_EmptyAndInvalid(t *testing.T) {
	t.Parallel()

	encoded, err := wave.Encode(wave.Buffer{SampleRate: 44100})
	require.NoError(t, err)
	assert.Len(t, encoded, wave.HeaderSize)

	_, err = wave.Encode(wave.Buffer{SampleRate: 0, Channels: [][]float32{{0.5}}})
	require.ErrorIs(t, err, wave.ErrInvalidSampleRate)
}

func TestEncode_Deterministic(t *testing.T) {
	t.Parallel()

	buffer := wave.Buffer{SampleRate: 22050, Channels: [][]float32{{0.1, 0.2}, {0.3, 0.4}}}

	first, err := wave.Encode(buffer)
	require.NoError(t, err)

	second, err := wave.Encode(buffer)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDownmix_AveragesChannels(t *testing.T) {
	t.Parallel()

	mono := wave.Downmix(wave.Buffer{
		SampleRate: 1,
		Channels:   [][]float32{{0.5, 0.25, 1}, {0.5, -0.25}},
	})

	assert.Equal(t, []float32{0.5, 0}, mono)
}

func TestDecode_StereoWAVToCanonical(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stereo.wav")

	file, err := os.Create(path)
	require.NoError(t, err)

	encoder := goaudiowav.NewEncoder(file, 48000, 16, 2, 1)
	require.NoError(t, encoder.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:           []int{16384, 16384, -16384, 0, 0, 0},
		SourceBitDepth: 16,
	}))
	require.NoError(t, encoder.Close())
	require.NoError(t, file.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, wave.IsCanonical(data))

	buffer, err := wave.Decode("audio/wav", data)
	require.NoError(t, err)

	assert.Equal(t, 48000, buffer.SampleRate)
	require.Len(t, buffer.Channels, 2)
	assert.Equal(t, 3, buffer.Frames())
	assert.InDelta(t, 0.5, buffer.Channels[0][0], 1e-6)
	assert.InDelta(t, -0.5, buffer.Channels[0][1], 1e-6)

	mono := wave.Downmix(buffer)
	assert.InDelta(t, 0.5, mono[0], 1e-6)
	assert.InDelta(t, -0.25, mono[1], 1e-6)
}

// unsignedWAV builds a mono 8-bit PCM file around the given samples.
func unsignedWAV(sampleRate uint32, samples []byte) []byte {
	data := []byte("RIFF")
	data = binary.LittleEndian.AppendUint32(data, uint32(36+len(samples)))
	data = append(data, "WAVEfmt "...)
	data = binary.LittleEndian.AppendUint32(data, 16)
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint32(data, sampleRate)
	data = binary.LittleEndian.AppendUint32(data, sampleRate)
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint16(data, 8)
	data = append(data, "data"...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(samples)))

	return append(data, samples...)
}

func TestDecode_UnsignedEightBitWAV(t *testing.T) {
	t.Parallel()

	buffer, err := wave.Decode("audio/wav", unsignedWAV(8000, []byte{128, 128, 255, 0}))
	require.NoError(t, err)

	assert.Equal(t, 8000, buffer.SampleRate)
	require.Len(t, buffer.Channels, 1)
	require.Len(t, buffer.Channels[0], 4)
	assert.InDelta(t, 0, buffer.Channels[0][0], 1e-6)
	assert.InDelta(t, 0, buffer.Channels[0][1], 1e-6)
	assert.InDelta(t, 127.0/128.0, buffer.Channels[0][2], 1e-6)
	assert.InDelta(t, -1, buffer.Channels[0][3], 1e-6)

	encoded, err := wave.Encode(buffer)
	require.NoError(t, err)
	assert.True(t, wave.IsCanonical(encoded))
}

func TestDecode_RejectsUnknownAndGarbage(t *testing.T) {
	t.Parallel()

	_, err := wave.Decode("audio/flac", []byte("fLaC"))
	require.ErrorIs(t, err, wave.ErrUnsupportedFormat)

	_, err = wave.Decode("audio/wav; codecs=1", []byte("definitely not riff"))
	require.ErrorIs(t, err, wave.ErrInvalidAudio)

	_, err = wave.Decode("audio/ogg", []byte("OggS but not really"))
	require.ErrorIs(t, err, wave.ErrInvalidAudio)
}

func TestExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "wav", wave.Extension("audio/wav"))
	assert.Equal(t, "ogg", wave.Extension("audio/ogg; codecs=vorbis"))
	assert.Equal(t, "mp3", wave.Extension("AUDIO/MPEG"))
	assert.Equal(t, "wav", wave.Extension("audio/webm"))
}
