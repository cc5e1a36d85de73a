// Package media serves project video files with byte-range support so the
// browser's video element can seek.
package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedRange = errors.New("malformed byte range")
	ErrUnsatisfiable  = errors.New("byte range not satisfiable")
)

// ByteRange is an inclusive [First, Last] span of a file.
type ByteRange struct {
	First int64
	Last  int64
}

func (r ByteRange) Length() int64 {
	return r.Last - r.First + 1
}

// Header renders the Content-Range value for a file of size bytes.
func (r ByteRange) Header(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.First, r.Last, size)
}

// ParseByteRange parses a Range header against a file of size bytes. It
// returns nil for an empty header. Only the first range of a multi-range
// request is honoured, and an end past the file is clamped.
func ParseByteRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrMalformedRange
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = first
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, ErrMalformedRange
	}

	var r ByteRange
	if startStr == "" {
		// Suffix form: the last n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrMalformedRange
		}
		if size == 0 {
			return nil, ErrUnsatisfiable
		}
		r.First = max(size-n, 0)
		r.Last = size - 1
		return &r, nil
	}

	first, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || first < 0 {
		return nil, ErrMalformedRange
	}
	last := size - 1
	if endStr != "" {
		last, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, ErrMalformedRange
		}
	}
	if first > last || first >= size {
		return nil, ErrUnsatisfiable
	}
	r.First = first
	r.Last = min(last, size-1)
	return &r, nil
}
