package attestation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/ruteri/scone-policy-sessions/runner"
)

// HashModeEnv makes a SCONE binary print its MRENCLAVE and exit.
const HashModeEnv = "SCONE_HASH=1"

var _ interfaces.Measurer = (*ContainerMeasurer)(nil)

// ContainerMeasurer measures binaries by running them in a container.
type ContainerMeasurer struct {
	runner runner.Runner
	log    *slog.Logger
}

func NewContainerMeasurer(r runner.Runner, log *slog.Logger) *ContainerMeasurer {
	return &ContainerMeasurer{runner: r, log: log}
}

// Measure returns the measurement printed by binary with all whitespace removed.
func (m *ContainerMeasurer) Measure(ctx context.Context, image, binary string) (string, error) {
	if image == "" || binary == "" {
		return "", fmt.Errorf("%w: image and binary are required", interfaces.ErrMeasurementFailed)
	}

	res, err := m.runner.Run(ctx, runner.Command{
		Image: image,
		Args:  []string{binary},
		Env:   []string{HashModeEnv},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s in %s: %w", interfaces.ErrMeasurementFailed, binary, image, err)
	}
	if !res.Success() {
		m.log.Error("Failed to determine MRENCLAVE", slog.String("image", image), "stderr", res.Stderr)
		return "", interfaces.WrapCommandError(interfaces.ErrMeasurementFailed, res.AsError("measure "+binary))
	}

	measurement := stripSpace(res.Stdout)
	if measurement == "" {
		return "", fmt.Errorf("%w: %s in %s printed no measurement", interfaces.ErrMeasurementFailed, binary, image)
	}
	m.log.Info("Determined MRENCLAVE", slog.String("image", image), slog.String("mrenclave", measurement))
	return measurement, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
