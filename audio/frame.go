// Package audio stitches MP3 buffers frame by frame and measures their playback time.
//
// Frames are treated as opaque: only the 4-byte MPEG audio header is decoded, which is
// enough to know each frame's length, sample rate and sample count.
package audio

import (
	"errors"
	"fmt"
)

// MPEG audio versions as encoded in header bits 19-20.
const (
	mpeg25 = 0
	mpeg2  = 2
	mpeg1  = 3
)

// Layers as encoded in header bits 17-18.
const (
	layer3 = 1
	layer2 = 2
	layer1 = 3
)

const frameHeaderSize = 4

// bitrates in kbps, indexed by [row][bitrate index]; index 0 is free format.
var bitrates = [5][15]int{
	{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448}, // MPEG-1 Layer I
	{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384},    // MPEG-1 Layer II
	{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320},     // MPEG-1 Layer III
	{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256},    // MPEG-2/2.5 Layer I
	{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},         // MPEG-2/2.5 Layer II & III
}

var sampleRates = map[int][3]int{
	mpeg1:  {44100, 48000, 32000},
	mpeg2:  {22050, 24000, 16000},
	mpeg25: {11025, 12000, 8000},
}

// ErrMalformedFrame is matched by every *FrameError.
var ErrMalformedFrame = errors.New("malformed mp3 frame")

// FrameError reports where frame parsing stopped inside a buffer.
type FrameError struct {
	Offset int
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("mp3 frame at offset %d: %s", e.Offset, e.Reason)
}

func (e *FrameError) Is(target error) bool { return target == ErrMalformedFrame }

// Frame is one MPEG audio frame. Data aliases the buffer it was parsed from.
type Frame struct {
	Data       []byte
	SampleRate int
	Samples    int
}

// Seconds is the playback time of the frame.
func (f Frame) Seconds() float64 {
	if f.SampleRate <= 0 || f.Samples <= 0 {
		return 0
	}
	return float64(f.Samples) / float64(f.SampleRate)
}

type header struct {
	version    int
	layer      int
	bitrate    int // bits per second
	sampleRate int
	padding    int
}

// parseHeader decodes the 4 header bytes at the start of b.
func parseHeader(b []byte) (header, string) {
	if len(b) < frameHeaderSize {
		return header{}, "short header"
	}
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return header{}, "missing frame sync"
	}

	h := header{
		version: int(b[1]>>3) & 0x3,
		layer:   int(b[1]>>1) & 0x3,
		padding: int(b[2]>>1) & 0x1,
	}
	if h.version == 1 {
		return header{}, "reserved mpeg version"
	}
	if h.layer == 0 {
		return header{}, "reserved layer"
	}

	bitrateIdx := int(b[2] >> 4)
	switch bitrateIdx {
	case 0:
		return header{}, "free-format bitrate is not supported"
	case 15:
		return header{}, "invalid bitrate index"
	}

	rateIdx := int(b[2]>>2) & 0x3
	if rateIdx == 3 {
		return header{}, "reserved sample rate"
	}

	h.bitrate = bitrates[bitrateRow(h.version, h.layer)][bitrateIdx] * 1000
	h.sampleRate = sampleRates[h.version][rateIdx]
	return h, ""
}

func bitrateRow(version, layer int) int {
	if version == mpeg1 {
		switch layer {
		case layer1:
			return 0
		case layer2:
			return 1
		default:
			return 2
		}
	}
	if layer == layer1 {
		return 3
	}
	return 4
}

// samples is the number of PCM samples per channel the frame decodes to.
func (h header) samples() int {
	switch {
	case h.layer == layer1:
		return 384
	case h.layer == layer3 && h.version != mpeg1:
		return 576
	default:
		return 1152
	}
}

// length is the full frame size in bytes, header included.
func (h header) length() int {
	switch {
	case h.layer == layer1:
		return (12*h.bitrate/h.sampleRate + h.padding) * 4
	case h.layer == layer3 && h.version != mpeg1:
		return 72*h.bitrate/h.sampleRate + h.padding
	default:
		return 144*h.bitrate/h.sampleRate + h.padding
	}
}
