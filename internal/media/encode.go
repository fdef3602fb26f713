package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// defaultStreamEncodeThreshold applies when no threshold is configured.
const defaultStreamEncodeThreshold = 50 * 1024 * 1024

const streamChunkSize = 8 * 1024 * 1024

// ToTransportPayload reads a media file and returns its base64 encoding for
// embedding in a model request body. Files larger than streamThreshold
// bytes are read in chunks instead of a single ReadFile, keeping peak
// allocations bounded for large segments.
func ToTransportPayload(path string, streamThreshold int64) (string, error) {
	if streamThreshold <= 0 {
		streamThreshold = defaultStreamEncodeThreshold
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if info.Size() <= streamThreshold {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return base64.StdEncoding.EncodeToString(data), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	buf.Grow(int(info.Size()))
	chunk := make([]byte, streamChunkSize)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
