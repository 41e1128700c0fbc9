package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// ErrDecode reports a combined artifact that could not be decoded. Callers
// surface it as "replay not found" rather than a server fault.
var ErrDecode = errors.New("decoding replay artifact")

// Encode serializes a merged session to gzipped JSON for artifact storage.
func Encode(m *MergedSession) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(m); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("encoding replay artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("encoding replay artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode. Malformed input yields ErrDecode.
func Decode(data []byte) (*MergedSession, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer func() { _ = zr.Close() }()

	var m MergedSession
	if err := json.NewDecoder(zr).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &m, nil
}
