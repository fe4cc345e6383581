package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/scone-policy-sessions/cmd/flags"
	"github.com/ruteri/scone-policy-sessions/cmd/policycommon"
	"github.com/ruteri/scone-policy-sessions/policies"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:     "cosign-policy",
		Usage:    "Manage OTP protected SCONE sessions for cosign image signing",
		Flags:    flags.CommonFlags("cosign-policy"),
		Commands: policycommon.Commands(policies.Cosign),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
