// Package interfaces defines the core types and contracts of the policy
// session manager, separating them from their implementations.
//
// # State
//
// PolicyState is the local snapshot of one session hierarchy: a namespace
// session and two dependent sessions, their last known hashes, the version
// counters that drive recreation, the cached MRENCLAVE and the rotating OTP
// secret. StateStore loads and persists the record as a whole.
//
// # Remote contracts
//
// SessionService is the four-operation command contract of the remote session
// store (read, verify, check, create). Measurer computes the MRENCLAVE of a
// binary inside a container image.
//
// # Archive
//
// StorageBackend provides content-addressed storage for committed session
// documents across file, S3 and IPFS backends.
//
// # Errors
//
// Error kinds are sentinel values (ErrCorruptState, ErrTemplate,
// ErrSessionVerifyFailed, ErrTemplateInvalid, ErrSessionCreateFailed,
// ErrMeasurementFailed, ...). Failures of external commands additionally wrap
// a *CommandError carrying the captured stdout and stderr. Commands that
// could not run at all wrap ErrCommandNotRun instead and carry no kind.
package interfaces
