package flags

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/ruteri/scone-policy-sessions/common"
	"github.com/ruteri/scone-policy-sessions/session"
	"github.com/ruteri/scone-policy-sessions/state"
	"github.com/ruteri/scone-policy-sessions/workload"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

const (
	CLIModeDocker = "docker"
	CLIModeLocal  = "local"
)

var WorkDirFlag = &cli.StringFlag{
	Name:    "workdir",
	Value:   ".",
	EnvVars: []string{"SCONE_POLICY_WORKDIR"},
	Usage:   "working directory holding the state record, policies and volumes",
}

var StateFlag = &cli.StringFlag{
	Name:    "state",
	Value:   state.DefaultURI,
	EnvVars: []string{"SCONE_POLICY_STATE"},
	Usage:   "state store URI: file://<path> (relative to workdir) or vault://host:port/mount/path",
}

var CASAddrFlag = &cli.StringFlag{
	Name:    "cas-addr",
	Value:   workload.DefaultCASAddr,
	EnvVars: []string{"SCONE_POLICY_CAS_ADDR", "SCONE_CAS_ADDR"},
	Usage:   "CAS address the workloads attest against",
}

var CLIImageFlag = &cli.StringFlag{
	Name:    "cli-image",
	Value:   session.DefaultCLIImage,
	EnvVars: []string{"SCONE_POLICY_CLI_IMAGE"},
	Usage:   "image containing the scone CLI (cli-mode docker)",
}

var CLIModeFlag = &cli.StringFlag{
	Name:    "cli-mode",
	Value:   CLIModeDocker,
	EnvVars: []string{"SCONE_POLICY_CLI_MODE"},
	Usage:   "how to run the scone CLI: 'docker' or 'local'",
}

var ArchiveFlag = &cli.StringSliceFlag{
	Name:    "archive",
	EnvVars: []string{"SCONE_POLICY_ARCHIVE"},
	Usage:   "storage URI receiving every committed session document (file://, s3://, ipfs://), repeatable",
}

var ArchivePubKeyFlag = &cli.StringFlag{
	Name:    "archive-pubkey",
	EnvVars: []string{"SCONE_POLICY_ARCHIVE_PUBKEY"},
	Usage:   "PEM encoded P-256 public key; archived documents are encrypted to it",
}

var TimeoutFlag = &cli.DurationFlag{
	Name:    "timeout",
	EnvVars: []string{"SCONE_POLICY_TIMEOUT"},
	Usage:   "bound on each scone CLI invocation, 0 means none",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

// CommonFlags returns the global flags shared by both variants.
func CommonFlags(service string) []cli.Flag {
	return []cli.Flag{
		WorkDirFlag,
		StateFlag,
		CASAddrFlag,
		CLIImageFlag,
		CLIModeFlag,
		ArchiveFlag,
		ArchivePubKeyFlag,
		TimeoutFlag,
		LogJsonFlag,
		LogDebugFlag,
		LogUidFlag,
		LogServiceFlagFn(service),
	}
}
