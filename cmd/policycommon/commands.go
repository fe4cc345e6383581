package policycommon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ruteri/scone-policy-sessions/cryptoutils"
	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/ruteri/scone-policy-sessions/lifecycle"
	"github.com/ruteri/scone-policy-sessions/policies"
	"github.com/ruteri/scone-policy-sessions/workload"
	"github.com/urfave/cli/v2"
)

// ErrNotCreated is returned by workload commands before the sessions exist.
var ErrNotCreated = errors.New("sessions have not been created, run create first")

// ErrNoArchive is returned by fetch-archived without an --archive location.
var ErrNoArchive = errors.New("no archive configured, pass --archive")

var forceFlag = &cli.BoolFlag{
	Name:  "force",
	Usage: "recreate sessions even if they are current",
}

var prefixFlag = &cli.StringFlag{
	Name:  "prefix",
	Value: policies.DefaultPrefix,
	Usage: "policy file prefix, files are <prefix>_namespace.yml, <prefix>_admin.yml and <prefix>_remote.yml",
}

var otpFlag = &cli.StringFlag{
	Name:  "otp",
	Usage: "current OTP of an existing authenticator, prompted for when not given",
}

var imageFlag = &cli.StringFlag{
	Name:     "image",
	Required: true,
	Usage:    "image reference to sign or verify",
}

var idFlag = &cli.StringFlag{
	Name:     "id",
	Required: true,
	Usage:    "content id of the archived document, as logged when it was archived",
}

var privKeyFlag = &cli.StringFlag{
	Name:  "privkey",
	Usage: "PEM encoded P-256 private key matching --archive-pubkey",
}

var secretFlag = &cli.StringFlag{
	Name:  "secret",
	Usage: "base32 OTP secret, defaults to the secret of the state record",
}

// Commands returns the subcommands of variant v.
func Commands(v policies.Variant) []*cli.Command {
	cmds := []*cli.Command{
		createCommand(v),
		rollForwardCommand(v),
		workloadCommand(v, "gen-qr-code", "generate the QR code of the primary session", false,
			func(s interfaces.PolicyState, _ string) workload.Job { return workload.GenQRCode(s) }),
		workloadCommand(v, "test-qr-code", "run the test service of the primary session", false,
			func(s interfaces.PolicyState, _ string) workload.Job { return workload.GenTestQRCode(s) }),
		workloadCommand(v, "add-authenticator", "add an authenticator using an OTP of an existing one", true,
			workload.AddAuthenticator),
		printOTPCommand(v),
		fetchArchivedCommand(v),
	}

	if v.ToolImage != "" {
		cmds = append(cmds,
			workloadCommand(v, "gen-keypair", "generate the signing key pair", true,
				func(s interfaces.PolicyState, otp string) workload.Job { return workload.GenKeypair(s, v, otp) }),
			imageCommand(v, "sign-image", "sign an image", workload.SignImage),
			imageCommand(v, "verify-image", "verify the signature of an image", workload.VerifyImage),
		)
	}
	if v.FileTemplates {
		cmds = append(cmds, genPoliciesCommand(v))
	}
	return cmds
}

func templateFlags(v policies.Variant, extra ...cli.Flag) []cli.Flag {
	if v.FileTemplates {
		extra = append(extra, prefixFlag)
	}
	return extra
}

func prefix(cCtx *cli.Context) string {
	if p := cCtx.String(prefixFlag.Name); p != "" {
		return p
	}
	return policies.DefaultPrefix
}

func createCommand(v policies.Variant) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "create or update the namespace and its sessions",
		Flags: templateFlags(v, forceFlag),
		Action: func(cCtx *cli.Context) error {
			env, err := Setup(cCtx, v)
			if err != nil {
				return err
			}
			tmpl, err := v.Templates(env.WorkDir, prefix(cCtx))
			if err != nil {
				return err
			}
			report, err := env.Coordinator.Create(cCtx.Context, tmpl, cCtx.Bool(forceFlag.Name))
			env.logStats()
			if err != nil {
				return err
			}
			printReport(cCtx.App.Writer, report)
			return nil
		},
	}
}

func rollForwardCommand(v policies.Variant) *cli.Command {
	return &cli.Command{
		Name:  "roll-forward",
		Usage: "replace the OTP secret and recreate all sessions, existing authenticators stop working",
		Flags: templateFlags(v, &cli.BoolFlag{
			Name:  forceFlag.Name,
			Usage: "confirm that the current secret is discarded",
		}),
		Action: func(cCtx *cli.Context) error {
			if !cCtx.Bool(forceFlag.Name) {
				return fmt.Errorf("%w: pass --force", lifecycle.ErrForceRequired)
			}
			env, err := Setup(cCtx, v)
			if err != nil {
				return err
			}
			tmpl, err := v.Templates(env.WorkDir, prefix(cCtx))
			if err != nil {
				return err
			}
			report, err := env.Coordinator.RollForward(cCtx.Context, tmpl, true)
			env.logStats()
			if err != nil {
				return err
			}
			printReport(cCtx.App.Writer, report)
			fmt.Fprintln(cCtx.App.Writer, "Secret rolled forward, run add-authenticator or gen-qr-code to enroll authenticators")
			return nil
		},
	}
}

func workloadCommand(v policies.Variant, name, usage string, needsOTP bool, job func(interfaces.PolicyState, string) workload.Job) *cli.Command {
	var cmdFlags []cli.Flag
	if needsOTP {
		cmdFlags = append(cmdFlags, otpFlag)
	}
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: cmdFlags,
		Action: func(cCtx *cli.Context) error {
			return runJob(cCtx, v, needsOTP, job)
		},
	}
}

func imageCommand(v policies.Variant, name, usage string, job func(interfaces.PolicyState, policies.Variant, string, string) workload.Job) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{imageFlag, otpFlag},
		Action: func(cCtx *cli.Context) error {
			image := cCtx.String(imageFlag.Name)
			return runJob(cCtx, v, true, func(s interfaces.PolicyState, otp string) workload.Job {
				return job(s, v, otp, image)
			})
		},
	}
}

func runJob(cCtx *cli.Context, v policies.Variant, needsOTP bool, build func(interfaces.PolicyState, string) workload.Job) error {
	env, err := Setup(cCtx, v)
	if err != nil {
		return err
	}
	st, err := env.Coordinator.State(cCtx.Context)
	if err != nil {
		return err
	}
	if st.SessionHash == "" || st.SessionHash2 == "" {
		return ErrNotCreated
	}

	var otp string
	if needsOTP {
		otp = cCtx.String(otpFlag.Name)
		if otp == "" {
			otp, err = workload.ReadOTP(os.Stdin, cCtx.App.Writer)
			if err != nil {
				return err
			}
		}
	}

	job := build(st, otp)
	if err := env.Launcher.Run(cCtx.Context, job); err != nil {
		return err
	}
	fmt.Fprintf(cCtx.App.Writer, "%s done, output written to %s\n", job.Name, workload.OutputFile)
	return nil
}

func genPoliciesCommand(v policies.Variant) *cli.Command {
	return &cli.Command{
		Name:  "gen-policies",
		Usage: "write the default policy templates to the working directory",
		Flags: []cli.Flag{prefixFlag, &cli.BoolFlag{
			Name:  forceFlag.Name,
			Usage: "overwrite existing policy files",
		}},
		Action: func(cCtx *cli.Context) error {
			env, err := Setup(cCtx, v)
			if err != nil {
				return err
			}
			if err := v.WritePolicies(env.WorkDir, prefix(cCtx), cCtx.Bool(forceFlag.Name), env.Log); err != nil {
				return err
			}
			for _, path := range v.PolicyFiles(env.WorkDir, prefix(cCtx)) {
				fmt.Fprintln(cCtx.App.Writer, "Written", path)
			}
			return nil
		},
	}
}

func printOTPCommand(v policies.Variant) *cli.Command {
	return &cli.Command{
		Name:  "print-otp",
		Usage: "print the current OTP for the secret",
		Flags: []cli.Flag{secretFlag},
		Action: func(cCtx *cli.Context) error {
			secret := cCtx.String(secretFlag.Name)
			if secret == "" {
				env, err := Setup(cCtx, v)
				if err != nil {
					return err
				}
				st, err := env.Coordinator.State(cCtx.Context)
				if err != nil {
					return err
				}
				secret = st.Secret
			}
			code, err := cryptoutils.TOTPCode(secret, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cCtx.App.Writer, code)
			return nil
		},
	}
}

func fetchArchivedCommand(v policies.Variant) *cli.Command {
	return &cli.Command{
		Name:  "fetch-archived",
		Usage: "print a session document from the archive",
		Flags: []cli.Flag{idFlag, privKeyFlag},
		Action: func(cCtx *cli.Context) error {
			id, err := interfaces.ParseContentID(cCtx.String(idFlag.Name))
			if err != nil {
				return err
			}
			env, err := Setup(cCtx, v)
			if err != nil {
				return err
			}
			if env.Archive == nil {
				return ErrNoArchive
			}

			var privKey []byte
			if path := cCtx.String(privKeyFlag.Name); path != "" {
				privKey, err = os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading archive private key: %w", err)
				}
			}
			document, err := env.Archive.Retrieve(cCtx.Context, id, privKey)
			if err != nil {
				return err
			}
			_, err = cCtx.App.Writer.Write(document)
			return err
		},
	}
}

func printReport(w io.Writer, r lifecycle.Report) {
	fmt.Fprintf(w, "namespace %s: %s (%s)\n", r.State.Namespace, r.State.NamespaceHash, r.Namespace.State)
	fmt.Fprintf(w, "session %s: %s (%s)\n", r.State.Session, r.State.SessionHash, r.Primary.State)
	fmt.Fprintf(w, "session %s: %s (%s)\n", r.State.Session2, r.State.SessionHash2, r.Secondary.State)
	fmt.Fprintf(w, "volume version %d\n", r.State.VolumeVersion)
}

func (e *Env) logStats() {
	stats := e.Reconciler.Stats()
	e.Log.Info("Reconciled sessions",
		slog.Int64("skipped", stats.Skipped),
		slog.Int64("verified", stats.Verified),
		slog.Int64("created", stats.Created),
		slog.Int64("failed", stats.Failed))
}
