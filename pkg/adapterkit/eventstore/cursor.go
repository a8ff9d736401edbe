package eventstore

import (
	"cmp"
	"encoding/base64"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
)

// CursorPosition is the position of a stored message. Time is the store
// clock at write, held from going backwards, and Sequence counts writes, so
// positions sort in write order whatever the messages' own timestamps are.
type CursorPosition struct {
	Time     time.Time
	Sequence uint64
}

// cursorToken is the wire form of a CursorPosition.
type cursorToken struct {
	UnixNano int64  `msgpack:"t"`
	Sequence uint64 `msgpack:"s"`
}

// Compare returns -1, 0 or +1 as c sorts before, equal to or after o.
func (c CursorPosition) Compare(o CursorPosition) int {
	if n := c.Time.Compare(o.Time); n != 0 {
		return n
	}
	return cmp.Compare(c.Sequence, o.Sequence)
}

// Encode returns the opaque token handed to clients.
func (c CursorPosition) Encode() string {
	data, err := msgpack.Marshal(cursorToken{UnixNano: c.Time.UnixNano(), Sequence: c.Sequence})
	if err != nil {
		// two integer fields always encode
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// ParseCursor decodes a token produced by Encode.
func ParseCursor(token string) (CursorPosition, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return CursorPosition{}, akerrors.Validation("parse_cursor", akerrors.ErrInvalidCursor, "cursor %q is not base64url", token)
	}
	var tok cursorToken
	if err := msgpack.Unmarshal(data, &tok); err != nil {
		return CursorPosition{}, akerrors.Validation("parse_cursor", akerrors.ErrInvalidCursor, "cursor %q does not decode", token)
	}
	return CursorPosition{Time: time.Unix(0, tok.UnixNano).UTC(), Sequence: tok.Sequence}, nil
}
