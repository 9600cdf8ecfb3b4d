// Package storage defines the persistence contracts for passkey state:
// credential records, single-use ceremony challenges, and user identities.
//
// Implementations live in subpackages; the ceremony orchestrator depends only
// on these interfaces so stores can be swapped or faked in tests.
package storage
