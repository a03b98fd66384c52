// Package compiled recognizes compiled script payloads and lifts them out of
// files in whatever shape they arrive: raw bytecode, base64 text, or a script
// body carrying the document marker convention.
package compiled

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoBytecode reports a file with no recognizable bytecode in any form.
var ErrNoBytecode = errors.New("compiled: no bytecode found in file")

var (
	magicLua51   = []byte{0x1b, 'L', 'u', 'a'}
	magicLuaJIT1 = []byte{0x1b, 'L', 'J', 0x01}
	magicLuaJIT2 = []byte{0x1b, 'L', 'J', 0x02}
)

const (
	markerLF   = "-- Bytecode (Base64):\n-- "
	markerCRLF = "-- Bytecode (Base64):\r\n-- "
)

// IsBytecode reports whether data starts like a compiled chunk: Lua 5.1 or
// LuaJIT magic, or a Luau version byte in the 3..6 range.
func IsBytecode(data []byte) bool {
	if len(data) < 5 {
		return false
	}
	header := data[:4]
	return bytes.Equal(header, magicLua51) ||
		bytes.Equal(header, magicLuaJIT1) ||
		bytes.Equal(header, magicLuaJIT2) ||
		(data[0] >= 3 && data[0] <= 6)
}

// FromFile extracts one base64 bytecode payload from path. The header return
// is non-empty only when the file used the document marker convention, in
// which case it holds everything up to and including the marker.
func FromFile(path string) (payload, header string, err error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("compiled: read %s: %w", path, err)
	}

	if IsBytecode(contents) {
		return base64.StdEncoding.EncodeToString(contents), "", nil
	}

	if decoded, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(contents))); decErr == nil {
		if IsBytecode(decoded) {
			return strings.TrimSpace(string(contents)), "", nil
		}
	}

	text := string(contents)
	pos, markerLen := strings.Index(text, markerLF), len(markerLF)
	if pos < 0 {
		pos, markerLen = strings.Index(text, markerCRLF), len(markerCRLF)
	}
	if pos < 0 {
		return "", "", ErrNoBytecode
	}

	start := pos + markerLen
	end := len(text)
	if idx := strings.IndexAny(text[start:], "\r\n"); idx >= 0 {
		end = start + idx
	}
	return text[start:end], text[:start], nil
}
