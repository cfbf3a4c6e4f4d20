package tasks

import (
	"encoding/base64"
	"strconv"
	"strings"

	errs "github.com/vinayprograms/taskstate/errors"
)

// Cursors are opaque to callers. Internally a cursor is "<kind>:<position>"
// in base64url, where kind identifies the store that issued it.
const (
	cursorMemory  = "m"
	cursorStorage = "s"
)

func encodeCursor(kind, position string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(kind + ":" + position))
}

// decodeCursor returns the position encoded in cursor. An empty cursor
// decodes to an empty position.
func decodeCursor(kind, cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", errs.WrapWithCode(err, errs.ErrCodeInvalidCursor, "invalid cursor")
	}
	k, pos, ok := strings.Cut(string(raw), ":")
	if !ok || k != kind || pos == "" {
		return "", errs.New(errs.ErrCodeInvalidCursor, "invalid cursor",
			errs.WithMetadata("cursor", cursor))
	}
	return pos, nil
}

func encodeSeqCursor(seq uint64) string {
	return encodeCursor(cursorMemory, strconv.FormatUint(seq, 10))
}

func decodeSeqCursor(cursor string) (uint64, error) {
	pos, err := decodeCursor(cursorMemory, cursor)
	if err != nil || pos == "" {
		return 0, err
	}
	seq, err := strconv.ParseUint(pos, 10, 64)
	if err != nil {
		return 0, errs.WrapWithCode(err, errs.ErrCodeInvalidCursor, "invalid cursor")
	}
	return seq, nil
}
