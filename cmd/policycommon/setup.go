// Package policycommon holds the wiring and commands shared by the
// otp-policy and cosign-policy binaries.
package policycommon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/scone-policy-sessions/attestation"
	"github.com/ruteri/scone-policy-sessions/cmd/flags"
	"github.com/ruteri/scone-policy-sessions/lifecycle"
	"github.com/ruteri/scone-policy-sessions/policies"
	"github.com/ruteri/scone-policy-sessions/runner"
	"github.com/ruteri/scone-policy-sessions/session"
	"github.com/ruteri/scone-policy-sessions/state"
	"github.com/ruteri/scone-policy-sessions/storage"
	"github.com/ruteri/scone-policy-sessions/workload"
	"github.com/urfave/cli/v2"
)

// Env is the wired application for one command invocation. Archive is nil
// when no --archive location is configured.
type Env struct {
	Variant     policies.Variant
	WorkDir     string
	Log         *slog.Logger
	Reconciler  *session.Reconciler
	Archive     *storage.Archive
	Coordinator *lifecycle.Coordinator
	Launcher    *workload.Launcher
}

// Setup builds the session client, state store, archive, measurer,
// coordinator and launcher from the global flags.
func Setup(cCtx *cli.Context, v policies.Variant) (*Env, error) {
	log := flags.SetupLogger(cCtx)

	workDir, err := filepath.Abs(cCtx.String(flags.WorkDirFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("resolving workdir: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warn("Could not determine home directory, CAS identity will not persist", "err", err)
	}

	containers, err := runner.NewDockerRunner(log)
	if err != nil {
		return nil, err
	}

	cliCfg := session.CLIConfig{
		WorkDir: workDir,
		HomeDir: homeDir,
		Timeout: cCtx.Duration(flags.TimeoutFlag.Name),
	}
	var cliRunner runner.Runner
	switch mode := cCtx.String(flags.CLIModeFlag.Name); mode {
	case flags.CLIModeDocker:
		cliCfg.Image = cCtx.String(flags.CLIImageFlag.Name)
		cliRunner = containers
	case flags.CLIModeLocal:
		cliRunner = runner.NewExecRunner(log)
	default:
		return nil, fmt.Errorf("unknown cli-mode %q, expected %q or %q", mode, flags.CLIModeDocker, flags.CLIModeLocal)
	}
	sessions := session.NewCLIClient(cliCfg, cliRunner, log)

	store, err := state.NewStore(cCtx.String(flags.StateFlag.Name), workDir, v.Defaults(), log)
	if err != nil {
		return nil, err
	}

	reconciler := session.NewReconciler(sessions, log)
	var archive *storage.Archive
	if archives := cCtx.StringSlice(flags.ArchiveFlag.Name); len(archives) > 0 {
		archive, err = setupArchive(cCtx, log, workDir, archives)
		if err != nil {
			return nil, err
		}
		reconciler = reconciler.WithArchiver(archive)
	}

	coordinator := lifecycle.NewCoordinator(lifecycle.Config{
		WorkDir:            workDir,
		Dirs:               v.Dirs,
		RollForwardMarkers: policies.RollForwardMarkers,
	}, store, attestation.NewContainerMeasurer(containers, log), reconciler, log)

	launcher := workload.NewLauncher(workload.Config{
		WorkDir: workDir,
		CASAddr: cCtx.String(flags.CASAddrFlag.Name),
		HomeDir: homeDir,
	}, containers, log)

	log.Debug("Configured",
		slog.String("variant", v.Name),
		slog.String("workdir", workDir),
		slog.String("state", store.LocationURI()))

	return &Env{
		Variant:     v,
		WorkDir:     workDir,
		Log:         log,
		Reconciler:  reconciler,
		Archive:     archive,
		Coordinator: coordinator,
		Launcher:    launcher,
	}, nil
}

func setupArchive(cCtx *cli.Context, log *slog.Logger, workDir string, uris []string) (*storage.Archive, error) {
	factory := storage.NewStorageBackendFactory(log, workDir)
	backend, err := factory.CreateMultiBackend(uris)
	if err != nil {
		return nil, fmt.Errorf("configuring archive: %w", err)
	}

	var pubKey []byte
	if path := cCtx.String(flags.ArchivePubKeyFlag.Name); path != "" {
		pubKey, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading archive public key: %w", err)
		}
	}
	return storage.NewArchive(backend, pubKey, log), nil
}
