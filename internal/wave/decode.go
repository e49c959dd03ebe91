package wave

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/audio"
	goaudiowav "github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Upstream container MIME types the decoder understands, in the order a
// recorder should prefer them.
const (
	MIMEWAV  = "audio/wav"
	MIMEOgg  = "audio/ogg"
	MIMEMPEG = "audio/mpeg"
)

// AcceptedFormats lists the recording formats that can be turned into
// canonical WAV.
var AcceptedFormats = []string{MIMEWAV, MIMEOgg, MIMEMPEG}

var (
	// ErrUnsupportedFormat is returned for containers Decode cannot read.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidAudio is returned when the bytes do not decode.
	ErrInvalidAudio = errors.New("invalid audio data")
)

const (
	mp3Channels      = 2
	mp3BytesPerFrame = mp3Channels * 2
	int16Scale       = 32768
	unsignedBitDepth = 8
	unsignedMidpoint = 128
)

// Extension maps a MIME type (parameters ignored) to a file extension.
func Extension(mime string) string {
	switch baseMIME(mime) {
	case MIMEOgg:
		return "ogg"
	case MIMEMPEG:
		return "mp3"
	default:
		return "wav"
	}
}

// Decode reads an upstream recording into a planar Buffer.
func Decode(mime string, data []byte) (Buffer, error) {
	switch baseMIME(mime) {
	case MIMEWAV, "audio/x-wav", "audio/wave":
		return decodeWAV(data)
	case MIMEMPEG, "audio/mp3":
		return decodeMP3(data)
	case MIMEOgg:
		return decodeOgg(data)
	default:
		return Buffer{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
}

func decodeWAV(data []byte) (Buffer, error) {
	decoder := goaudiowav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return Buffer{}, fmt.Errorf("%w: not a PCM wav file", ErrInvalidAudio)
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}

	return planarFromInts(pcm)
}

// planarFromInts normalizes interleaved integer PCM of any bit depth.
func planarFromInts(pcm *audio.IntBuffer) (Buffer, error) {
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 {
		return Buffer{}, fmt.Errorf("%w: no channels", ErrInvalidAudio)
	}

	channels := pcm.Format.NumChannels

	scale := float32(int16Scale)
	if pcm.SourceBitDepth > 0 {
		scale = float32(int(1) << (pcm.SourceBitDepth - 1))
	}

	// 8-bit PCM is unsigned around a midpoint of 128.
	offset := 0
	if pcm.SourceBitDepth == unsignedBitDepth {
		offset = unsignedMidpoint
	}

	planar := make([][]float32, channels)
	frames := len(pcm.Data) / channels

	for channel := range planar {
		planar[channel] = make([]float32, frames)
	}

	for frame := range frames {
		for channel := range channels {
			planar[channel][frame] = float32(pcm.Data[frame*channels+channel]-offset) / scale
		}
	}

	return Buffer{SampleRate: pcm.Format.SampleRate, Channels: planar}, nil
}

func decodeMP3(data []byte) (Buffer, error) {
	decoder, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}

	// go-mp3 always yields interleaved 16-bit little-endian stereo.
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}

	frames := len(raw) / mp3BytesPerFrame
	planar := [][]float32{make([]float32, frames), make([]float32, frames)}

	for frame := range frames {
		for channel := range mp3Channels {
			offset := frame*mp3BytesPerFrame + channel*2
			value := int16(uint16(raw[offset]) | uint16(raw[offset+1])<<8)
			planar[channel][frame] = float32(value) / int16Scale
		}
	}

	return Buffer{SampleRate: decoder.SampleRate(), Channels: planar}, nil
}

func decodeOgg(data []byte) (Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}

	channels := format.Channels
	if channels <= 0 {
		return Buffer{}, fmt.Errorf("%w: no channels", ErrInvalidAudio)
	}

	frames := len(samples) / channels
	planar := make([][]float32, channels)

	for channel := range planar {
		planar[channel] = make([]float32, frames)
		for frame := range frames {
			planar[channel][frame] = samples[frame*channels+channel]
		}
	}

	return Buffer{SampleRate: format.SampleRate, Channels: planar}, nil
}

func baseMIME(mime string) string {
	base, _, _ := strings.Cut(mime, ";")

	return strings.ToLower(strings.TrimSpace(base))
}
