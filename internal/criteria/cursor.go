package criteria

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// EncodeCursor returns the opaque cursor of the 1-based row index n.
func EncodeCursor(n int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(n)))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor %q: %w", cursor, err)
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid cursor %q: not a row index", cursor)
	}
	return n, nil
}
