// Package httputil provides HTTP helpers shared by the REST-backed stores.
package httputil

import (
	"fmt"
	"io"
)

// ReadAllWithLimit reads at most limit bytes from r. The second return value
// reports whether the body was truncated. Used for error bodies, where a
// partial message is still useful.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) < limit {
		return body, false, nil
	}
	// Probe one more byte to distinguish an exact fit from truncation.
	var probe [1]byte
	n, err := r.Read(probe[:])
	if n > 0 {
		return body, true, nil
	}
	if err != nil && err != io.EOF {
		return nil, false, err
	}
	return body, false, nil
}

// ReadAllStrict reads the whole body and fails if it exceeds limit. Used for
// payloads that must be complete to be usable.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	body, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return body, nil
}
