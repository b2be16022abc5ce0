// Package domain defines the core business types of the treasury governance engine.
//
// This package holds the pure domain model shared by every other package:
//
// - Identities and proposal ids (go-ethereum common.Address / common.Hash)
// - Proposals, votes and their lifecycle statuses
// - The governance configuration singleton and its validation bounds
// - Capabilities granted to identities
// - Events observed after each successful state change
// - Sentinel errors for every precondition the engine enforces
//
// Apart from the go-ethereum value types the package depends only on the
// standard library. Storage, transport and policy evaluation live in other
// packages that depend on these types. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
