package oracle

import (
	"crypto/sha256"
	"encoding/hex"
)

// Outcome is the final result of one decompilation request. Exactly one of
// Source or Err is meaningful; a remote failure arrives as Err carrying the
// server's failure text.
type Outcome struct {
	Source string
	Err    error
}

// Request is one logical decompilation of an encoded bytecode payload.
// It is handed to the Client once via Submit and its receipt is fulfilled
// exactly once, ever.
type Request struct {
	Payload     string
	Fingerprint string
	Size        int64

	receipt chan Outcome
}

// NewRequest fingerprints the encoded payload text and prepares a one-shot
// receipt.
func NewRequest(payload string) *Request {
	return &Request{
		Payload:     payload,
		Fingerprint: Fingerprint(payload),
		Size:        int64(len(payload)),
		receipt:     make(chan Outcome, 1),
	}
}

// Receipt yields the request's outcome once it is known.
func (r *Request) Receipt() <-chan Outcome {
	return r.receipt
}

// Resolve delivers the outcome. The client event loop (or the local
// rejection path) calls this exactly once per request; callers must never
// resolve a request they did not create.
func (r *Request) Resolve(o Outcome) {
	r.receipt <- o
}

// Fingerprint is the sha-256 hex digest of the encoded payload text. It
// matches the input_hash the service echoes back in results.
func Fingerprint(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
