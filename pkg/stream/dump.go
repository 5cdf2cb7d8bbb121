package stream

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// PreviewBytes is the number of leading bytes shown per frame by Preview.
const PreviewBytes = 16

// WriteRaw writes the raw host stream to path.
func WriteRaw(path string, raw []byte) error {
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write raw stream: %w", err)
	}
	return nil
}

// ReadRaw reads a raw host stream dump.
func ReadRaw(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw stream: %w", err)
	}
	return raw, nil
}

// Preview prints the first PreviewBytes bytes of every frame in raw, one
// frame per line, as upper-case hex.
func Preview(w io.Writer, raw []byte, frameBytes int) error {
	if frameBytes <= 0 {
		return fmt.Errorf("invalid frame size %d", frameBytes)
	}
	var sb strings.Builder
	for off := 0; off < len(raw); off += frameBytes {
		sb.Reset()
		end := min(off+PreviewBytes, len(raw))
		for _, b := range raw[off:end] {
			fmt.Fprintf(&sb, "%02X, ", b)
		}
		if _, err := fmt.Fprintln(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}
