package audio

import "bytes"

const (
	id3v2HeaderSize = 10
	id3v1TagSize    = 128
)

// TagSize returns the number of bytes taken by a leading ID3v2 tag (header
// included), or 0 when buf does not start with one. The tag size field is
// synchsafe: four bytes carrying seven bits each.
func TagSize(buf []byte) int {
	if len(buf) < id3v2HeaderSize || !bytes.HasPrefix(buf, []byte("ID3")) {
		return 0
	}
	size := int(buf[6]&0x7F)<<21 |
		int(buf[7]&0x7F)<<14 |
		int(buf[8]&0x7F)<<7 |
		int(buf[9]&0x7F)
	return id3v2HeaderSize + size
}

// FrameScanner walks the MPEG audio frames of an in-memory MP3 buffer.
//
//	s := audio.NewFrameScanner(buf)
//	for s.Scan() {
//		use(s.Frame())
//	}
//	if err := s.Err(); err != nil {
//		// stopped early on a malformed frame
//	}
//
// Scanning stops for good at the end of the buffer (Err is nil) or at the first
// frame that cannot be parsed (Err is a *FrameError).
type FrameScanner struct {
	buf   []byte
	pos   int
	frame Frame
	err   error
	done  bool
}

// NewFrameScanner positions a scanner after any leading ID3v2 tag.
func NewFrameScanner(buf []byte) *FrameScanner {
	return &FrameScanner{buf: buf, pos: min(TagSize(buf), len(buf))}
}

// Scan advances to the next frame.
func (s *FrameScanner) Scan() bool {
	if s.done {
		return false
	}

	rest := s.buf[s.pos:]
	if len(rest) == 0 || isTrailingID3v1(rest) {
		s.done = true
		return false
	}

	h, reason := parseHeader(rest)
	if reason != "" {
		return s.fail(reason)
	}
	n := h.length()
	if n <= frameHeaderSize {
		return s.fail("frame length too small")
	}
	if n > len(rest) {
		return s.fail("truncated frame")
	}

	s.frame = Frame{
		Data:       rest[:n:n],
		SampleRate: h.sampleRate,
		Samples:    h.samples(),
	}
	s.pos += n
	return true
}

// Frame returns the frame produced by the last successful Scan.
func (s *FrameScanner) Frame() Frame { return s.frame }

// Offset is the read position within the buffer.
func (s *FrameScanner) Offset() int { return s.pos }

// Err returns the *FrameError that stopped scanning, or nil after a clean end.
func (s *FrameScanner) Err() error { return s.err }

func (s *FrameScanner) fail(reason string) bool {
	s.err = &FrameError{Offset: s.pos, Reason: reason}
	s.frame = Frame{}
	s.done = true
	return false
}

func isTrailingID3v1(rest []byte) bool {
	return len(rest) == id3v1TagSize && bytes.HasPrefix(rest, []byte("TAG"))
}
