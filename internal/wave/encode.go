// Package wave converts decoded audio into the canonical reference-audio
// container: a mono, 16-bit PCM, little-endian WAV file.
package wave

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// HeaderSize is the size of the canonical RIFF/WAVE header.
const HeaderSize = 44

const (
	pcmFormat       = 1
	monoChannels    = 1
	bitsPerSample   = 16
	bytesPerSample  = bitsPerSample / 8
	fmtChunkSize    = 16
	riffHeaderBytes = 36
	negativeScale   = 32768
	positiveScale   = 32767
)

// ErrInvalidSampleRate is returned when a buffer has no usable sample rate.
var ErrInvalidSampleRate = errors.New("sample rate must be positive")

// Buffer is decoded, planar floating-point audio. Every channel holds the
// same number of samples in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the per-channel sample count.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}

	frames := len(b.Channels[0])
	for _, channel := range b.Channels[1:] {
		frames = min(frames, len(channel))
	}

	return frames
}

// Downmix averages sample-aligned values across all channels.
func Downmix(b Buffer) []float32 {
	frames := b.Frames()
	mono := make([]float32, frames)

	if len(b.Channels) == 1 {
		copy(mono, b.Channels[0])

		return mono
	}

	count := float32(len(b.Channels))
	for frame := range frames {
		var sum float32
		for _, channel := range b.Channels {
			sum += channel[frame]
		}

		mono[frame] = sum / count
	}

	return mono
}

// Encode renders the buffer as canonical WAV bytes. The output is exactly
// HeaderSize + 2*frames bytes long.
func Encode(b Buffer) ([]byte, error) {
	if b.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}

	mono := Downmix(b)
	dataSize := len(mono) * bytesPerSample
	out := make([]byte, HeaderSize+dataSize)

	writeHeader(out[:HeaderSize], b.SampleRate, dataSize)

	for index, sample := range mono {
		offset := HeaderSize + index*bytesPerSample
		binary.LittleEndian.PutUint16(out[offset:offset+bytesPerSample], uint16(toPCM16(sample)))
	}

	return out, nil
}

// IsCanonical reports whether data already is a mono 16-bit PCM WAV with
// the canonical 44-byte header.
func IsCanonical(data []byte) bool {
	if len(data) < HeaderSize {
		return false
	}

	return bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE")) &&
		bytes.Equal(data[12:16], []byte("fmt ")) &&
		binary.LittleEndian.Uint16(data[20:22]) == pcmFormat &&
		binary.LittleEndian.Uint16(data[22:24]) == monoChannels &&
		binary.LittleEndian.Uint16(data[34:36]) == bitsPerSample &&
		bytes.Equal(data[36:40], []byte("data"))
}

func writeHeader(header []byte, sampleRate, dataSize int) {
	byteRate := uint32(sampleRate) * monoChannels * bytesPerSample

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(riffHeaderBytes+dataSize))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(header[20:22], pcmFormat)
	binary.LittleEndian.PutUint16(header[22:24], monoChannels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], monoChannels*bytesPerSample)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))
}

// toPCM16 clamps to [-1, 1] and scales asymmetrically so +1 maps to 32767
// and -1 to -32768.
func toPCM16(sample float32) int16 {
	if math.IsNaN(float64(sample)) {
		return 0
	}

	clamped := min(max(sample, -1), 1)
	if clamped < 0 {
		return int16(clamped * negativeScale)
	}

	return int16(clamped * positiveScale)
}
