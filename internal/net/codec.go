package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrame is the largest payload a frame can carry.
const MaxFrame = 1<<16 - 1 - frameHeader

const frameHeader = 2

var ErrFrameTooLarge = errors.New("frame too large")

// ReadFrame 從 r 讀取一個封包框。
// 格式：[2 bytes LE：含標頭的總長度][payload]。
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeader]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	total := int(binary.LittleEndian.Uint16(header[:]))
	n := total - frameHeader
	if n <= 0 {
		return nil, fmt.Errorf("invalid frame length: %d", total)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", n, err)
	}
	return payload, nil
}

// WriteFrame writes data to w as one frame in a single Write call.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("write frame: empty payload")
	}
	if len(data) > MaxFrame {
		return fmt.Errorf("write frame (%d bytes): %w", len(data), ErrFrameTooLarge)
	}
	buf := make([]byte, frameHeader+len(data))
	binary.LittleEndian.PutUint16(buf, uint16(len(buf)))
	copy(buf[frameHeader:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
