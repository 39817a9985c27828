// Package domain models field incident reports as they move from a device's
// offline queue to the shared report store, and the derived analytics read
// back from that store.
//
// # Report Lifecycle
//
// A Submission is the validated input from the reporting form. When it can be
// committed immediately it never touches local storage. Otherwise it becomes an
// OfflineReport, owned by the local queue, and moves through the sync states:
//
//	pending | failed  ->  syncing  ->  synced (removed) | failed (retried later)
//
// There is no pending -> synced shortcut. Every attempt passes through syncing
// so that a crash during the remote call is visible on the next drain.
//
// A SyncRecord (local id -> remote id) is written after every confirmed commit.
// A ledger hit is treated as proof that the remote write already happened, so a
// retry never writes twice.
//
// # Canonical Reports
//
// Report is the remote store's view. Its Status (Pending, Verified, Rejected) is
// owned by an external moderation process and is read-only here.
//
// # Coordinates
//
// Coordinates are WGS-84 degrees. A (0, 0) or partially zero pair is treated as
// "no fix" because the reporting form sends zeros when location permission is
// denied. See [Coordinates.Valid].
//
// # Barangay
//
// The barangay is the smallest administrative area and is the aggregation key
// for risk scoring. It is free text from the form and compared verbatim.
package domain
