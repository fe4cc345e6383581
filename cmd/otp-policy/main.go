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
		Name:     "otp-policy",
		Usage:    "Create and rotate OTP protected SCONE sessions",
		Flags:    flags.CommonFlags("otp-policy"),
		Commands: policycommon.Commands(policies.OTP),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
