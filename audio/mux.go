package audio

import (
	"fmt"
	"io"
)

// AppendAndMeasure copies the frames of one MP3 buffer to w, in order, and returns
// how many seconds of audio were written.
//
// Parsing stops at the first malformed frame. The frames before it are still written
// and counted, and the *FrameError is returned alongside the partial duration so the
// caller can decide to carry on. A failing writer is reported as a plain error.
func AppendAndMeasure(w io.Writer, buf []byte) (float64, error) {
	var seconds float64
	s := NewFrameScanner(buf)
	for s.Scan() {
		f := s.Frame()
		if _, err := w.Write(f.Data); err != nil {
			return seconds, fmt.Errorf("write frame at offset %d: %w", s.Offset()-len(f.Data), err)
		}
		seconds += f.Seconds()
	}
	return seconds, s.Err()
}
