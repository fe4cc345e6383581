// Package lifecycle sequences the reconciliation of a namespace and its two
// dependent sessions, and rotates their shared secret.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/scone-policy-sessions/cryptoutils"
	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/ruteri/scone-policy-sessions/policies"
	"github.com/ruteri/scone-policy-sessions/session"
)

// ErrForceRequired is returned by RollForward without force. Rolling forward
// destroys the current OTP secret.
var ErrForceRequired = errors.New("roll-forward removes the current secret and requires force")

// Config configures the local side effects of the coordinator.
type Config struct {
	// WorkDir is the directory the session volumes are mounted from.
	WorkDir string
	// Dirs are created in WorkDir before every create.
	Dirs []string
	// RollForwardMarkers are removed from WorkDir on roll-forward.
	RollForwardMarkers []string
}

// Report describes a successful create.
type Report struct {
	State     interfaces.PolicyState
	Namespace session.Outcome
	Primary   session.Outcome
	Secondary session.Outcome
}

// Coordinator drives measurement, namespace, primary and secondary session
// reconciliation in that order, then persists the state record. The record
// is saved only when every step succeeded.
type Coordinator struct {
	cfg        Config
	store      interfaces.StateStore
	measurer   interfaces.Measurer
	reconciler *session.Reconciler
	newSecret  func() (string, error)
	log        *slog.Logger
}

func NewCoordinator(cfg Config, store interfaces.StateStore, measurer interfaces.Measurer, reconciler *session.Reconciler, log *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		store:      store,
		measurer:   measurer,
		reconciler: reconciler,
		newSecret:  cryptoutils.RandomSecret,
		log:        log,
	}
}

// Create creates or updates the sessions. Without force, only sessions with
// an unknown hash or a stale volume version are touched.
func (c *Coordinator) Create(ctx context.Context, tmpl policies.TemplateSet, force bool) (Report, error) {
	c.prepareDirs()

	state, err := c.store.Load(ctx)
	if err != nil {
		return Report{}, err
	}

	if state.MrEnclave == "" || force {
		mrenclave, err := c.measurer.Measure(ctx, state.OTPImage, state.OTPBinary)
		if err != nil {
			return Report{}, fmt.Errorf("failed to determine MRENCLAVE, does image %s exist? %w", state.OTPImage, err)
		}
		state.MrEnclave = mrenclave
	}

	report := Report{}

	report.Namespace, err = c.reconcile(ctx, state, state.Namespace, state.NamespaceHash, tmpl.Namespace, force)
	if err != nil {
		return Report{}, fmt.Errorf("creating namespace: %w", err)
	}
	state.NamespaceHash = report.Namespace.Hash

	needCreate := force || !state.PrimaryCurrent()
	report.Primary, err = c.reconcile(ctx, state, state.Session, state.SessionHash, tmpl.Primary, needCreate)
	if err != nil {
		return Report{}, fmt.Errorf("creating session: %w", err)
	}
	state.SessionHash = report.Primary.Hash
	state.SessionVersion = state.VolumeVersion
	c.log.Info("Session hash", slog.String("session", state.Session), slog.String("hash", state.SessionHash))

	// the secondary session imports the volume and secret of the primary one
	needCreate2 := needCreate || !state.SecondaryCurrent()
	report.Secondary, err = c.reconcile(ctx, state, state.Session2, state.SessionHash2, tmpl.Secondary, needCreate2)
	if err != nil {
		return Report{}, fmt.Errorf("creating session2: %w", err)
	}
	state.SessionHash2 = report.Secondary.Hash
	state.SessionVersion2 = state.VolumeVersion
	c.log.Info("Session hash", slog.String("session", state.Session2), slog.String("hash", state.SessionHash2))

	if err := c.store.Save(ctx, state); err != nil {
		return Report{}, err
	}
	report.State = state
	return report, nil
}

// RollForward replaces the secret and bumps the volume version, then recreates
// all sessions. The new secret is saved before any session is touched, so a
// failed recreation is recovered by running Create again.
func (c *Coordinator) RollForward(ctx context.Context, tmpl policies.TemplateSet, force bool) (Report, error) {
	if !force {
		return Report{}, ErrForceRequired
	}

	state, err := c.store.Load(ctx)
	if err != nil {
		return Report{}, err
	}
	secret, err := c.newSecret()
	if err != nil {
		return Report{}, err
	}
	state.VolumeVersion++
	state.Secret = secret
	if err := c.store.Save(ctx, state); err != nil {
		return Report{}, err
	}
	c.log.Info("Rolled secret forward", slog.Uint64("volume_version", state.VolumeVersion))

	for _, marker := range c.cfg.RollForwardMarkers {
		path := filepath.Join(c.cfg.WorkDir, marker)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("Failed to remove marker", slog.String("path", path), "err", err)
		}
	}

	c.log.Info("Updating policies")
	return c.Create(ctx, tmpl, true)
}

// State returns the current record.
func (c *Coordinator) State(ctx context.Context) (interfaces.PolicyState, error) {
	return c.store.Load(ctx)
}

func (c *Coordinator) reconcile(ctx context.Context, state interfaces.PolicyState, name, hash, tmpl string, force bool) (session.Outcome, error) {
	return c.reconciler.Reconcile(ctx, session.Request{
		Name:     name,
		Hash:     hash,
		Template: tmpl,
		Bindings: state.Bindings(),
		Force:    force,
	})
}

func (c *Coordinator) prepareDirs() {
	for _, dir := range c.cfg.Dirs {
		path := filepath.Join(c.cfg.WorkDir, dir)
		if err := os.MkdirAll(path, 0755); err != nil {
			c.log.Warn("Failed to create directory", slog.String("path", path), "err", err)
		}
	}
}
