package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/atomic"

	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/ruteri/scone-policy-sessions/templates"
)

const (
	// BindingPredecessorKey and BindingPredecessor are synthesized for every
	// render. A template chains to the prior version with the line
	//
	//	{{predecessor_key}}: {{predecessor}}
	BindingPredecessorKey = "predecessor_key"
	BindingPredecessor    = "predecessor"

	// NoPredecessorKey turns the chaining line into a YAML comment.
	NoPredecessorKey = "#"
	// PredecessorKey is the session document key referencing the prior hash.
	PredecessorKey = "predecessor"
)

// State is the progress of one reconciliation.
type State int

const (
	// StateUnknown: nothing was learned from the store.
	StateUnknown State = iota
	// StateVerified: the current remote session was read and verified.
	StateVerified
	// StateValidated: a rendered document passed the remote dry-run.
	StateValidated
	// StateCommitted: the store accepted the document.
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateVerified:
		return "verified"
	case StateValidated:
		return "validated"
	case StateCommitted:
		return "committed"
	default:
		return "invalid"
	}
}

// Archiver stores committed documents. Failures are logged and ignored.
type Archiver interface {
	Archive(ctx context.Context, session string, document []byte) (interfaces.ContentID, error)
}

// Request describes one session to reconcile.
type Request struct {
	Name     string
	Hash     string // last known local hash, "" when unknown
	Template string
	Bindings templates.Bindings
	Force    bool
}

// Outcome is the result of a successful reconciliation.
type Outcome struct {
	// Hash is the new last known hash of the session.
	Hash  string
	State State
}

// Created reports whether a document was committed.
func (o Outcome) Created() bool {
	return o.State == StateCommitted
}

// Reconciler drives one session from its last known hash to a hash confirmed
// by the store. It never returns a hash the store did not report, so every
// error leaves the caller's state untouched and the operation retryable.
type Reconciler struct {
	service  interfaces.SessionService
	archiver Archiver
	log      *slog.Logger
	stats    *reconcilerStats
}

type reconcilerStats struct {
	skipped  atomic.Int64
	verified atomic.Int64
	created  atomic.Int64
	failed   atomic.Int64
}

// Stats counts reconciliations by result.
type Stats struct {
	Skipped  int64
	Verified int64
	Created  int64
	Failed   int64
}

func NewReconciler(service interfaces.SessionService, log *slog.Logger) *Reconciler {
	return &Reconciler{service: service, log: log, stats: &reconcilerStats{}}
}

// WithArchiver returns a reconciler that archives committed documents. It
// shares the counters of r.
func (r *Reconciler) WithArchiver(archiver Archiver) *Reconciler {
	return &Reconciler{service: r.service, archiver: archiver, log: r.log, stats: r.stats}
}

func (r *Reconciler) Stats() Stats {
	return Stats{
		Skipped:  r.stats.skipped.Load(),
		Verified: r.stats.verified.Load(),
		Created:  r.stats.created.Load(),
		Failed:   r.stats.failed.Load(),
	}
}

// Reconcile creates the session if it is missing or force is set, otherwise
// refreshes its hash from the store. A non-empty hash without force is
// trusted as current and causes no remote traffic.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (Outcome, error) {
	outcome, err := r.reconcile(ctx, req)
	switch {
	case err != nil:
		r.stats.failed.Inc()
	case outcome.State == StateCommitted:
		r.stats.created.Inc()
	case outcome.State == StateVerified:
		r.stats.verified.Inc()
	default:
		r.stats.skipped.Inc()
	}
	return outcome, err
}

func (r *Reconciler) reconcile(ctx context.Context, req Request) (Outcome, error) {
	log := r.log.With(slog.String("session", req.Name))

	if req.Hash != "" && !req.Force {
		log.Debug("Session hash known, skipping", slog.String("hash", req.Hash))
		return Outcome{Hash: req.Hash, State: StateUnknown}, nil
	}

	log.Info("Determining session hash")
	force := req.Force
	predecessor := templates.Bindings{BindingPredecessorKey: NoPredecessorKey, BindingPredecessor: ""}
	outcome := Outcome{State: StateUnknown}

	content, err := r.service.ReadSession(ctx, req.Name)
	switch {
	case errors.Is(err, interfaces.ErrCommandNotRun):
		log.Warn("Session store unreachable, assuming the session does not exist", "err", err)
		force = true
	case err != nil:
		log.Info("Reading session failed, creating it", "err", err)
		force = true
	default:
		hash, err := r.service.VerifySession(ctx, content)
		if err != nil {
			log.Error("Failed to verify session", "err", err)
			return Outcome{}, ensureKind(err, interfaces.ErrSessionVerifyFailed, req.Name)
		}
		log.Info("Verified session", slog.String("hash", hash))
		predecessor = templates.Bindings{BindingPredecessorKey: PredecessorKey, BindingPredecessor: hash}
		outcome = Outcome{Hash: hash, State: StateVerified}
	}

	if !force {
		return outcome, nil
	}

	document, err := templates.Render(req.Template, req.Bindings.With(predecessor))
	if err != nil {
		return Outcome{}, fmt.Errorf("rendering %s: %w", req.Name, err)
	}
	if err := templates.CheckYAML(document); err != nil {
		return Outcome{}, fmt.Errorf("checking %s: %w", req.Name, err)
	}

	if err := r.service.CheckDocument(ctx, document); err != nil {
		log.Error("Session document contains errors", "err", err)
		return Outcome{}, ensureKind(err, interfaces.ErrTemplateInvalid, req.Name)
	}
	log.Debug("Session document is valid")

	hash, err := r.service.CreateSession(ctx, document)
	if err != nil {
		log.Error("Failed to create session", "err", err)
		return Outcome{}, ensureKind(err, interfaces.ErrSessionCreateFailed, req.Name)
	}
	if hash == "" {
		return Outcome{}, fmt.Errorf("%w: %s: store returned an empty hash", interfaces.ErrSessionCreateFailed, req.Name)
	}
	log.Info("Created session", slog.String("hash", hash))

	if r.archiver != nil {
		if id, err := r.archiver.Archive(ctx, req.Name, []byte(document)); err != nil {
			log.Warn("Failed to archive session document", "err", err)
		} else {
			log.Debug("Archived session document", slog.String("content_id", id.String()))
		}
	}

	return Outcome{Hash: hash, State: StateCommitted}, nil
}

// ensureKind guarantees that err matches kind, whatever the SessionService
// implementation returned. Commands that never ran carry no verdict on the
// document and are not tagged.
func ensureKind(err error, kind error, name string) error {
	if errors.Is(err, kind) || errors.Is(err, interfaces.ErrCommandNotRun) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, name, err)
}
