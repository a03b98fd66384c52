package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type discriminators carried in the "type" field.
const (
	TypeDecompile           = "decompile"
	TypeOptions             = "options"
	TypeDecompilationResult = "decompilation_result"
)

var ErrUnknownMessage = errors.New("protocol: unknown message")

// Decompile is the serverbound submission of encoded bytecode payloads.
type Decompile struct {
	Type string   `json:"type"`
	Data []string `json:"data"`
}

// NewDecompile builds a submission envelope for the given payloads.
func NewDecompile(payloads ...string) Decompile {
	return Decompile{Type: TypeDecompile, Data: payloads}
}

// Options is the serverbound declarative decompiler configuration.
// The payload is one of V1Options or V2Options.
type Options struct {
	Type    string `json:"type"`
	Options any    `json:"options"`
}

// NewOptions wraps an options payload in its envelope.
func NewOptions(payload any) Options {
	return Options{Type: TypeOptions, Options: payload}
}

// DecompilationResult is the clientbound outcome for one fingerprint.
// InputHash is the sha-256 hex fingerprint of the original submission; on
// failure Data carries the error text instead of decompiled source.
type DecompilationResult struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Data      string `json:"data"`
	InputHash string `json:"input_hash"`
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeClientbound parses one inbound message. Unrecognized message types
// return ErrUnknownMessage so callers can log and keep going.
func DecodeClientbound(data []byte) (*DecompilationResult, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	switch env.Type {
	case TypeDecompilationResult:
		var res DecompilationResult
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, fmt.Errorf("protocol: malformed %s: %w", TypeDecompilationResult, err)
		}
		return &res, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}
