// Package services implements the vault's storage engine on top of the
// repositories: encrypted record persistence, the audit logger, the
// cross-module index and the export engine.
//
// Every write runs in one transaction that also appends its audit entry, so a
// record mutation is never persisted without its audit trail. Services open
// repositories on the transaction handle the way dbx.WithTx callers do.
package services
