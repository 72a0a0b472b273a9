package ipc

import (
	"bytes"
	"errors"
)

// DefaultFrameLimit caps how many unparsed bytes a scanner retains.
const DefaultFrameLimit = 4096

var errNeedMore = errors.New("frame incomplete")

// frameParser decodes the bytes after a magic sequence. It returns the number
// of bytes it consumed, which is non-zero even on error, or errNeedMore when
// body ends mid-frame.
type frameParser[T any] func(body []byte) (T, int, error)

// FrameScanner extracts magic-prefixed frames from a byte stream that may
// split or concatenate them arbitrarily. Bytes before a magic sequence are
// skipped. It is not safe for concurrent use.
type FrameScanner[T any] struct {
	magic []byte
	parse frameParser[T]
	limit int
	buf   []byte
}

func newFrameScanner[T any](magic []byte, parse frameParser[T], limit int) *FrameScanner[T] {
	if limit <= 0 {
		limit = DefaultFrameLimit
	}
	return &FrameScanner[T]{magic: magic, parse: parse, limit: limit}
}

// NewCommandScanner scans inbound "CMD" frames.
func NewCommandScanner(limit int) *FrameScanner[Command] {
	return newFrameScanner(CommandMagic, parseCommand, limit)
}

// NewMessageScanner scans outbound "MSG" frames.
func NewMessageScanner(limit int) *FrameScanner[Message] {
	return newFrameScanner(MessageMagic, parseMessage, limit)
}

// Write appends received bytes. When the buffer exceeds the limit the oldest
// bytes are discarded.
func (s *FrameScanner[T]) Write(p []byte) {
	s.buf = append(s.buf, p...)
	if over := len(s.buf) - s.limit; over > 0 {
		s.consume(over)
	}
}

// Buffered reports how many bytes are waiting for more data.
func (s *FrameScanner[T]) Buffered() int { return len(s.buf) }

// Next returns the next frame. ok is false when no complete frame is
// buffered. A malformed frame is consumed and reported through err with ok
// set, so callers can log it and keep scanning.
func (s *FrameScanner[T]) Next() (v T, ok bool, err error) {
	i := bytes.Index(s.buf, s.magic)
	if i < 0 {
		s.keepMagicPrefix()
		return v, false, nil
	}
	s.consume(i)

	v, n, err := s.parse(s.buf[len(s.magic):])
	if errors.Is(err, errNeedMore) {
		return v, false, nil
	}
	s.consume(len(s.magic) + n)
	return v, true, err
}

func (s *FrameScanner[T]) consume(n int) {
	s.buf = append(s.buf[:0], s.buf[n:]...)
}

// keepMagicPrefix drops everything except a trailing partial magic.
func (s *FrameScanner[T]) keepMagicPrefix() {
	for k := min(len(s.magic)-1, len(s.buf)); k > 0; k-- {
		if bytes.HasPrefix(s.magic, s.buf[len(s.buf)-k:]) {
			s.consume(len(s.buf) - k)
			return
		}
	}
	s.buf = s.buf[:0]
}
