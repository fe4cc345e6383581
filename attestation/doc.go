// Package attestation determines the SCONE measurement (MRENCLAVE) of a
// binary by running it inside its image with SCONE_HASH=1.
package attestation
