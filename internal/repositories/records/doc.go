// Package records persists the module tables of the vault. Rows carry
// plaintext metadata in ordinary columns and sensitive fields as sealed
// blobs; this package never sees plaintext of a sealed column.
package records
