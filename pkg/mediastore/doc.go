// Package mediastore provides a deduplicating media asset store with
// pluggable repository and blob storage backends.
//
// Uploaded images and videos are hashed; identical content is stored once
// in the Asset Registry and referenced any number of times from the
// Ownership Ledger, which keeps a per-owner display order. The link with the
// lowest display order is the owner's thumbnail.
//
// The Service interface orchestrates hashing, registry insert-or-reuse, blob
// writes and ledger appends. Repository implementations (memory, Postgres,
// BoltDB) and blob stores (memory, filesystem, S3) live in subpackages.
//
// # Consistency
//
// All shared state lives behind the Repository. Uniqueness of content
// hashes, display order assignment and thumbnail swaps are enforced by the
// repository's own transactional guarantees, never by locks in the service,
// so several processes may share one database.
package mediastore
