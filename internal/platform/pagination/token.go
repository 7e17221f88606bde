package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// tokenPrefix versions the token layout; tokens are opaque to clients.
const tokenPrefix = "v1:"

// EncodeToken returns the page token for cursor. The first page has no token.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.Offset < 0 {
		return "", fmt.Errorf("pagination: negative offset %d", cursor.Offset)
	}
	if cursor.Offset == 0 {
		return "", nil
	}
	return base64.RawURLEncoding.EncodeToString([]byte(tokenPrefix + strconv.Itoa(cursor.Offset))), nil
}

// DecodeToken reverses EncodeToken. An empty token is the first page.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	value, ok := strings.CutPrefix(string(raw), tokenPrefix)
	if !ok {
		return Cursor{}, fmt.Errorf("%w: unknown token version", ErrInvalidPageToken)
	}
	offset, err := strconv.Atoi(value)
	if err != nil || offset < 0 {
		return Cursor{}, fmt.Errorf("%w: bad offset %q", ErrInvalidPageToken, value)
	}
	return Cursor{Offset: offset}, nil
}
