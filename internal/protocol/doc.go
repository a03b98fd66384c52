// Package protocol owns the oracle wire contract.
//
// Ownership boundary:
// - serverbound message shapes (decompile, options)
// - clientbound result decoding
// - the versioned decompiler option schemas
package protocol
