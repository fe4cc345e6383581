// Package workload runs the attested services of a session. Each service
// obtains its configuration from CAS through SCONE_CONFIG_ID, so a job only
// names the session, the service and, for OTP protected sessions, a current
// one-time password.
package workload

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/ruteri/scone-policy-sessions/policies"
	"github.com/ruteri/scone-policy-sessions/runner"
)

const (
	// OutputFile receives the standard output of every job in the working directory.
	OutputFile = "qr.output"

	// DefaultCASAddr is the CAS the services attest against.
	DefaultCASAddr = "scone-cas.cf"

	containerWorkDir = "/root"
)

// Job is one service invocation.
type Job struct {
	Name    string
	Session string
	Service string
	// OTP is appended to the config id when the session requires it.
	OTP   string
	Image string
	Args  []string
	// Docker mounts the docker socket and the user's docker config for jobs
	// that pull or push images.
	Docker bool
	// KeysDir is mounted at /root/<KeysDir> when set.
	KeysDir string
}

// ConfigID is the SCONE_CONFIG_ID of the job.
func (j Job) ConfigID() string {
	id := j.Session + "/" + j.Service
	if j.OTP != "" {
		id += "@" + j.OTP
	}
	return id
}

func GenQRCode(s interfaces.PolicyState) Job {
	return Job{Name: "gen-qr-code", Session: s.Session, Service: "otpqr", Image: s.OTPImage, Args: []string{s.OTPBinary}}
}

func GenTestQRCode(s interfaces.PolicyState) Job {
	return Job{Name: "test-qr-code", Session: s.Session, Service: "test", Image: s.OTPImage, Args: []string{s.OTPBinary}}
}

func AddAuthenticator(s interfaces.PolicyState, otp string) Job {
	return Job{Name: "add-authenticator", Session: s.Session2, Service: "otpqr", OTP: otp, Image: s.OTPImage, Args: []string{s.OTPBinary}}
}

func GenKeypair(s interfaces.PolicyState, v policies.Variant, otp string) Job {
	return Job{Name: "gen-keypair", Session: s.Session2, Service: "generate-key-pair", OTP: otp, Image: v.ToolImage, Args: []string{v.ToolBinary}}
}

func SignImage(s interfaces.PolicyState, v policies.Variant, otp, image string) Job {
	return Job{
		Name: "sign-image", Session: s.Session2, Service: "sign", OTP: otp,
		Image: v.ToolImage, Args: []string{v.ToolBinary, image},
		Docker: true, KeysDir: policies.CosignKeysDir,
	}
}

func VerifyImage(s interfaces.PolicyState, v policies.Variant, otp, image string) Job {
	return Job{
		Name: "verify-image", Session: s.Session2, Service: "verify", OTP: otp,
		Image: v.ToolImage, Args: []string{v.ToolBinary, image},
		Docker: true, KeysDir: policies.CosignKeysDir,
	}
}

// Config configures the launcher.
type Config struct {
	WorkDir string
	CASAddr string
	// HomeDir provides .docker for Docker jobs.
	HomeDir string
}

// Launcher runs jobs in containers with the working directory mounted at /root.
type Launcher struct {
	cfg    Config
	runner runner.Runner
	log    *slog.Logger
}

func NewLauncher(cfg Config, r runner.Runner, log *slog.Logger) *Launcher {
	if cfg.CASAddr == "" {
		cfg.CASAddr = DefaultCASAddr
	}
	return &Launcher{cfg: cfg, runner: r, log: log}
}

// Run executes job and writes its standard output to OutputFile. A job that
// exits unsuccessfully yields ErrWorkloadFailed carrying its error output.
func (l *Launcher) Run(ctx context.Context, job Job) error {
	if job.Session == "" || job.Image == "" {
		return fmt.Errorf("%w: %s: session and image are required, run create first", interfaces.ErrWorkloadFailed, job.Name)
	}

	res, err := l.runner.Run(ctx, l.command(job))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", interfaces.ErrWorkloadFailed, job.Name, err)
	}

	output := filepath.Join(l.cfg.WorkDir, OutputFile)
	if err := os.WriteFile(output, []byte(res.Stdout), 0600); err != nil {
		l.log.Warn("Failed to write job output", slog.String("path", output), "err", err)
	}
	l.log.Info("Job finished",
		slog.String("job", job.Name),
		slog.String("session", job.Session),
		slog.String("service", job.Service),
		slog.Int("exit_code", res.ExitCode))

	if !res.Success() {
		return interfaces.WrapCommandError(interfaces.ErrWorkloadFailed, res.AsError(job.Name))
	}
	return nil
}

func (l *Launcher) command(job Job) runner.Command {
	workDir, err := filepath.Abs(l.cfg.WorkDir)
	if err != nil {
		workDir = l.cfg.WorkDir
	}

	mounts := []runner.Mount{{Source: workDir, Target: containerWorkDir}}
	if job.Docker {
		mounts = append(mounts, runner.Mount{Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"})
		if l.cfg.HomeDir != "" {
			mounts = append(mounts, runner.Mount{
				Source: filepath.Join(l.cfg.HomeDir, ".docker"),
				Target: containerWorkDir + "/.docker",
			})
		}
	}
	if job.KeysDir != "" {
		mounts = append(mounts, runner.Mount{
			Source: filepath.Join(workDir, job.KeysDir),
			Target: containerWorkDir + "/" + job.KeysDir,
		})
	}

	return runner.Command{
		Image: job.Image,
		Args:  job.Args,
		Env: []string{
			"SCONE_CAS_ADDR=" + l.cfg.CASAddr,
			"SCONE_CONFIG_ID=" + job.ConfigID(),
		},
		Mounts:  mounts,
		WorkDir: containerWorkDir,
	}
}

// OTPPrompt is shown when an OTP protected job is started without --otp.
const OTPPrompt = `
Adding a new authenticator requires an OTP from an existing authenticator.
    - The new QR code is written to file 'qrcode.svg'
    - Starting containers can take a while. Wait for a new code to appear on your authenticator.
Type OTP and press enter: `

// ReadOTP prompts on w and reads one line from r with all whitespace removed.
func ReadOTP(r io.Reader, w io.Writer) (string, error) {
	if _, err := io.WriteString(w, OTPPrompt); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("error getting OTP: %w", err)
	}
	otp := strings.Map(func(c rune) rune {
		if unicode.IsSpace(c) {
			return -1
		}
		return c
	}, line)
	if otp == "" {
		return "", fmt.Errorf("error getting OTP: empty input")
	}
	return otp, nil
}
