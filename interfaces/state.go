package interfaces

import (
	"context"
	"strconv"
)

// PolicyState is the local snapshot of the session hierarchy kept in the
// working directory. One record exists per working directory.
type PolicyState struct {
	// Namespace is the randomly chosen root session name. Immutable once created.
	Namespace string `json:"namespace"`
	// NamespaceHash is the last known hash of the namespace session; empty when unknown.
	NamespaceHash string `json:"namespace_hash"`

	// Session is the fully qualified name of the primary session (namespace/suffix).
	Session string `json:"session"`
	// SessionHash is the last known hash of the primary session.
	SessionHash string `json:"session_hash"`
	// SessionVersion is the volume version active when the primary session was last created.
	SessionVersion uint64 `json:"session_version"`

	// Session2 is the fully qualified name of the secondary session.
	Session2 string `json:"session2"`
	// SessionHash2 is the last known hash of the secondary session.
	SessionHash2 string `json:"session_hash2"`
	// SessionVersion2 is the volume version active when the secondary session was last created.
	SessionVersion2 uint64 `json:"session_version2"`

	// MrEnclave is the cached measurement of OTPBinary in OTPImage; empty means recompute.
	MrEnclave string `json:"mrenclave"`
	// VolumeVersion is the rotation counter. Incrementing it forces recreation of both dependent sessions.
	VolumeVersion uint64 `json:"volume_version"`

	OTPImage     string `json:"otp_image"`
	OTPBinary    string `json:"otp_binary"`
	SconeUser    string `json:"scone_user"`
	SconeAccount string `json:"scone_account"`

	// Secret is the base32 encoded OTP seed. Replaced on every roll-forward.
	Secret string `json:"secret"`
}

// PrimaryCurrent reports whether the primary session reflects the latest rotation.
func (s PolicyState) PrimaryCurrent() bool {
	return s.SessionVersion == s.VolumeVersion
}

// SecondaryCurrent reports whether the secondary session reflects the latest rotation.
func (s PolicyState) SecondaryCurrent() bool {
	return s.SessionVersion2 == s.VolumeVersion
}

// Bindings returns the template bindings for every field of the record, keyed
// by the persisted field name.
func (s PolicyState) Bindings() map[string]string {
	return map[string]string{
		"namespace":        s.Namespace,
		"namespace_hash":   s.NamespaceHash,
		"session":          s.Session,
		"session_hash":     s.SessionHash,
		"session_version":  strconv.FormatUint(s.SessionVersion, 10),
		"session2":         s.Session2,
		"session_hash2":    s.SessionHash2,
		"session_version2": strconv.FormatUint(s.SessionVersion2, 10),
		"mrenclave":        s.MrEnclave,
		"volume_version":   strconv.FormatUint(s.VolumeVersion, 10),
		"otp_image":        s.OTPImage,
		"otp_binary":       s.OTPBinary,
		"scone_user":       s.SconeUser,
		"scone_account":    s.SconeAccount,
		"secret":           s.Secret,
	}
}

// StateStore loads and persists the PolicyState record as a whole.
type StateStore interface {
	// Load returns the persisted record, or a freshly generated default when
	// nothing has been persisted yet. Undecodable records yield ErrCorruptState.
	Load(ctx context.Context) (PolicyState, error)

	// Save replaces the persisted record. A crash during Save never leaves a
	// partially written record readable as valid.
	Save(ctx context.Context, state PolicyState) error

	// LocationURI identifies where the record lives.
	LocationURI() string
}

// StateDefaults generates the record used on first run.
type StateDefaults func() (PolicyState, error)
