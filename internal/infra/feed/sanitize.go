package feed

import (
	"bytes"
	"fmt"
	"io"
)

var (
	xmlDecl = []byte("<?xml")
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// readCapped reads at most limit bytes from r and fails when more remain.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("feed body exceeds %d bytes", limit)
	}
	return body, nil
}

// sanitize drops a byte order mark and anything a server emitted before the
// XML declaration (PHP notices, stray whitespace).
func sanitize(body []byte) []byte {
	body = bytes.TrimPrefix(body, utf8BOM)
	if i := bytes.Index(body, xmlDecl); i > 0 {
		body = body[i:]
	}
	return bytes.TrimSpace(body)
}

func isBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}
