package policies

import (
	"fmt"
	"os/user"

	"github.com/ruteri/scone-policy-sessions/cryptoutils"
	"github.com/ruteri/scone-policy-sessions/interfaces"
)

const (
	// SingleRunDir holds the single-use markers of the OTP volume.
	SingleRunDir = "single_run"
	// CosignKeysDir receives the cosign key pair.
	CosignKeysDir = "cosign_keys"

	namespaceNameLength = 20
	userNameLength      = 10
)

// RollForwardMarkers are removed on every roll-forward so the new volume
// version starts without markers of the previous one.
var RollForwardMarkers = []string{
	SingleRunDir + "/once",
	SingleRunDir + "/volume.fspf",
}

// Variant describes one family of sessions managed under a namespace.
type Variant struct {
	Name string

	PrimarySuffix   string
	SecondarySuffix string
	Account         string

	// OTPImage and OTPBinary are measured and referenced by the sessions.
	OTPImage  string
	OTPBinary string

	// ToolImage and ToolBinary run the variant's tool workloads, if any.
	ToolImage  string
	ToolBinary string

	// Dirs are created in the working directory before sessions are reconciled.
	Dirs []string

	// FileTemplates marks variants whose templates are read from policy files
	// written by gen-policies rather than the built-in ones.
	FileTemplates bool
}

var (
	OTP = Variant{
		Name:            "otp",
		PrimarySuffix:   "otpqr-x",
		SecondarySuffix: "otpqr-reset",
		Account:         "SCONE OTP",
		OTPImage:        "otpqr:scone",
		OTPBinary:       "/bin/otpqr",
		Dirs:            []string{SingleRunDir},
	}

	Cosign = Variant{
		Name:            "cosign",
		PrimarySuffix:   "cosign",
		SecondarySuffix: "cosign-reset",
		Account:         "SCONE cosign",
		OTPImage:        "otpqr:scone",
		OTPBinary:       "/bin/otpqr",
		ToolImage:       "cosign:scone",
		ToolBinary:      "/go/bin/cosign",
		Dirs:            []string{SingleRunDir, CosignKeysDir},
		FileTemplates:   true,
	}
)

// Defaults returns the generator of the first-run state record.
func (v Variant) Defaults() interfaces.StateDefaults {
	return func() (interfaces.PolicyState, error) {
		return v.NewState()
	}
}

// NewState generates a record with a random namespace and a fresh secret.
func (v Variant) NewState() (interfaces.PolicyState, error) {
	ns, err := cryptoutils.RandomName(namespaceNameLength)
	if err != nil {
		return interfaces.PolicyState{}, err
	}
	secret, err := cryptoutils.RandomSecret()
	if err != nil {
		return interfaces.PolicyState{}, err
	}
	sconeUser, err := currentUser()
	if err != nil {
		return interfaces.PolicyState{}, err
	}

	return interfaces.PolicyState{
		Namespace:    ns,
		Session:      fmt.Sprintf("%s/%s", ns, v.PrimarySuffix),
		Session2:     fmt.Sprintf("%s/%s", ns, v.SecondarySuffix),
		SconeUser:    sconeUser,
		SconeAccount: v.Account,
		OTPImage:     v.OTPImage,
		OTPBinary:    v.OTPBinary,
		Secret:       secret,
	}, nil
}

func currentUser() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	return cryptoutils.RandomName(userNameLength)
}
