package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/ruteri/scone-policy-sessions/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTemplate = `name: {{session}}
version: "0.3"
{{predecessor_key}}: {{predecessor}}
secret: {{secret}}
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest(hash string, force bool) Request {
	return Request{
		Name:     "ns/otpqr-x",
		Hash:     hash,
		Template: testTemplate,
		Bindings: templates.Bindings{"session": "ns/otpqr-x", "secret": "S3CRET"},
		Force:    force,
	}
}

func TestReconcile_KnownHashSkipsRemote(t *testing.T) {
	svc := &MockSessionService{}
	r := NewReconciler(svc, testLogger())

	out, err := r.Reconcile(context.Background(), testRequest("cafe", false))
	require.NoError(t, err)
	assert.Equal(t, "cafe", out.Hash)
	assert.Equal(t, StateUnknown, out.State)
	assert.False(t, out.Created())
	svc.AssertNotCalled(t, "ReadSession", mock.Anything, mock.Anything)
}

func TestReconcile_MissingSessionIsCreatedWithoutPredecessor(t *testing.T) {
	svc := &MockSessionService{}
	svc.On("ReadSession", mock.Anything, "ns/otpqr-x").Return("", interfaces.ErrSessionNotFound)
	svc.On("CheckDocument", mock.Anything, mock.MatchedBy(func(doc string) bool {
		return strings.Contains(doc, "#: \n") && strings.Contains(doc, "secret: S3CRET")
	})).Return(nil)
	svc.On("CreateSession", mock.Anything, mock.Anything).Return("beef", nil)

	r := NewReconciler(svc, testLogger())
	out, err := r.Reconcile(context.Background(), testRequest("", false))
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, out.State)
	assert.True(t, out.Created())
	assert.Equal(t, "beef", out.Hash)
	svc.AssertNotCalled(t, "VerifySession", mock.Anything, mock.Anything)
	svc.AssertExpectations(t)
}

func TestReconcile_ExistingSessionRefreshesHash(t *testing.T) {
	svc := &MockSessionService{}
	svc.On("ReadSession", mock.Anything, "ns/otpqr-x").Return("content", nil)
	svc.On("VerifySession", mock.Anything, "content").Return("abcd", nil)

	r := NewReconciler(svc, testLogger())
	out, err := r.Reconcile(context.Background(), testRequest("", false))
	require.NoError(t, err)
	assert.Equal(t, "abcd", out.Hash)
	assert.Equal(t, StateVerified, out.State)
	svc.AssertNotCalled(t, "CheckDocument", mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestReconcile_ForceChainsPredecessor(t *testing.T) {
	svc := &MockSessionService{}
	svc.On("ReadSession", mock.Anything, "ns/otpqr-x").Return("content", nil)
	svc.On("VerifySession", mock.Anything, "content").Return("abcd", nil)
	svc.On("CheckDocument", mock.Anything, mock.MatchedBy(func(doc string) bool {
		return strings.Contains(doc, "predecessor: abcd\n")
	})).Return(nil)
	svc.On("CreateSession", mock.Anything, mock.MatchedBy(func(doc string) bool {
		return strings.Contains(doc, "predecessor: abcd\n")
	})).Return("ef01", nil)

	r := NewReconciler(svc, testLogger())
	out, err := r.Reconcile(context.Background(), testRequest("abcd", true))
	require.NoError(t, err)
	assert.Equal(t, "ef01", out.Hash)
	assert.True(t, out.Created())
	svc.AssertExpectations(t)
}

func TestReconcile_Failures(t *testing.T) {
	injected := errors.New("boom")

	tests := []struct {
		name  string
		setup func(svc *MockSessionService)
		kind  error
	}{
		{
			name: "verify fails",
			setup: func(svc *MockSessionService) {
				svc.On("ReadSession", mock.Anything, mock.Anything).Return("content", nil)
				svc.On("VerifySession", mock.Anything, mock.Anything).Return("", injected)
			},
			kind: interfaces.ErrSessionVerifyFailed,
		},
		{
			name: "check fails",
			setup: func(svc *MockSessionService) {
				svc.On("ReadSession", mock.Anything, mock.Anything).Return("", interfaces.ErrSessionNotFound)
				svc.On("CheckDocument", mock.Anything, mock.Anything).Return(injected)
			},
			kind: interfaces.ErrTemplateInvalid,
		},
		{
			name: "create fails",
			setup: func(svc *MockSessionService) {
				svc.On("ReadSession", mock.Anything, mock.Anything).Return("", interfaces.ErrSessionNotFound)
				svc.On("CheckDocument", mock.Anything, mock.Anything).Return(nil)
				svc.On("CreateSession", mock.Anything, mock.Anything).Return("", injected)
			},
			kind: interfaces.ErrSessionCreateFailed,
		},
		{
			name: "create returns empty hash",
			setup: func(svc *MockSessionService) {
				svc.On("ReadSession", mock.Anything, mock.Anything).Return("", interfaces.ErrSessionNotFound)
				svc.On("CheckDocument", mock.Anything, mock.Anything).Return(nil)
				svc.On("CreateSession", mock.Anything, mock.Anything).Return("", nil)
			},
			kind: interfaces.ErrSessionCreateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockSessionService{}
			tt.setup(svc)

			r := NewReconciler(svc, testLogger())
			out, err := r.Reconcile(context.Background(), testRequest("old", true))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, Outcome{}, out)
		})
	}
}

func TestReconcile_TemplateErrorBeforeSubmission(t *testing.T) {
	svc := &MockSessionService{}
	svc.On("ReadSession", mock.Anything, mock.Anything).Return("", interfaces.ErrSessionNotFound)

	req := testRequest("", false)
	req.Bindings = templates.Bindings{"session": "ns/otpqr-x"}

	r := NewReconciler(svc, testLogger())
	_, err := r.Reconcile(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrTemplate)
	svc.AssertNotCalled(t, "CheckDocument", mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestReconcile_UnreachableStoreKeepsCause(t *testing.T) {
	unreachable := fmt.Errorf("%w: scone session check: %w", interfaces.ErrCommandNotRun, errors.New("docker daemon unavailable"))

	svc := &MockSessionService{}
	svc.On("ReadSession", mock.Anything, mock.Anything).Return("", unreachable)
	svc.On("CheckDocument", mock.Anything, mock.Anything).Return(unreachable)

	r := NewReconciler(svc, testLogger())
	_, err := r.Reconcile(context.Background(), testRequest("", false))
	require.ErrorIs(t, err, interfaces.ErrCommandNotRun)
	assert.NotErrorIs(t, err, interfaces.ErrTemplateInvalid)
	assert.Contains(t, err.Error(), "docker daemon unavailable")
	svc.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestReconcile_InvalidYAMLIsNotSubmitted(t *testing.T) {
	svc := &MockSessionService{}
	svc.On("ReadSession", mock.Anything, mock.Anything).Return("", interfaces.ErrSessionNotFound)

	req := testRequest("", false)
	req.Template = "name: [{{session}}\n"

	r := NewReconciler(svc, testLogger())
	_, err := r.Reconcile(context.Background(), req)
	require.ErrorIs(t, err, interfaces.ErrTemplateInvalid)
	assert.NotErrorIs(t, err, interfaces.ErrTemplate)
	svc.AssertNotCalled(t, "CheckDocument", mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

type recordingArchiver struct {
	documents map[string][]byte
	err       error
}

func (a *recordingArchiver) Archive(ctx context.Context, session string, document []byte) (interfaces.ContentID, error) {
	if a.err != nil {
		return interfaces.ContentID{}, a.err
	}
	a.documents[session] = document
	return interfaces.ComputeID(document), nil
}

func TestReconcile_WithMemoryServiceAndArchive(t *testing.T) {
	svc := NewMemoryService()
	archive := &recordingArchiver{documents: map[string][]byte{}}
	r := NewReconciler(svc, testLogger()).WithArchiver(archive)
	ctx := context.Background()

	nsTemplate := "name: {{namespace}}\n{{predecessor_key}}: {{predecessor}}\n"
	nsOut, err := r.Reconcile(ctx, Request{Name: "ns", Template: nsTemplate, Bindings: templates.Bindings{"namespace": "ns"}})
	require.NoError(t, err)
	require.True(t, nsOut.Created())
	assert.Equal(t, svc.Hash("ns"), nsOut.Hash)

	first, err := r.Reconcile(ctx, testRequest("", false))
	require.NoError(t, err)
	require.True(t, first.Created())
	assert.Contains(t, string(archive.documents["ns/otpqr-x"]), "secret: S3CRET")

	// refresh without force only verifies
	refreshed, err := r.Reconcile(ctx, testRequest("", false))
	require.NoError(t, err)
	assert.Equal(t, StateVerified, refreshed.State)
	assert.Equal(t, first.Hash, refreshed.Hash)

	// forced update chains onto the current hash
	second, err := r.Reconcile(ctx, testRequest(first.Hash, true))
	require.NoError(t, err)
	require.True(t, second.Created())
	assert.NotEqual(t, first.Hash, second.Hash)
	assert.Contains(t, svc.Content("ns/otpqr-x"), "predecessor: "+first.Hash)

	// archive failures do not change the result
	archive.err = errors.New("archive down")
	third, err := r.Reconcile(ctx, testRequest(second.Hash, true))
	require.NoError(t, err)
	assert.True(t, third.Created())
}

func TestReconcile_ChildBeforeNamespaceIsRejected(t *testing.T) {
	svc := NewMemoryService()
	r := NewReconciler(svc, testLogger())

	_, err := r.Reconcile(context.Background(), testRequest("", false))
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrTemplateInvalid)
	assert.Equal(t, int64(0), svc.Calls(OpCreate))
}

func TestReconcile_Stats(t *testing.T) {
	svc := &MockSessionService{}
	svc.On("ReadSession", mock.Anything, "ns/otpqr-x").Return("content", nil)
	svc.On("VerifySession", mock.Anything, "content").Return("abcd", nil)

	r := NewReconciler(svc, testLogger())
	archiving := r.WithArchiver(&recordingArchiver{documents: map[string][]byte{}})

	_, err := r.Reconcile(context.Background(), testRequest("known", false))
	require.NoError(t, err)
	_, err = archiving.Reconcile(context.Background(), testRequest("", false))
	require.NoError(t, err)

	assert.Equal(t, Stats{Skipped: 1, Verified: 1}, r.Stats())
}
