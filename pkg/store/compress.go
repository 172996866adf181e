package store

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// minCompressSize is the payload size below which compression is skipped;
// tiny JSON bodies grow under gzip framing.
const minCompressSize = 512

// compressPayload gzips value. Returns the original bytes and false when
// the payload is too small or compression would not shrink it.
func compressPayload(value []byte) ([]byte, bool, error) {
	if len(value) < minCompressSize {
		return value, false, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(value); err != nil {
		return nil, false, fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, false, fmt.Errorf("gzip close: %w", err)
	}

	if buf.Len() >= len(value) {
		return value, false, nil
	}
	return buf.Bytes(), true, nil
}

// decompressPayload reverses compressPayload for entries stored compressed.
func decompressPayload(value []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}
