package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/scone-policy-sessions/cryptoutils"
	"github.com/ruteri/scone-policy-sessions/interfaces"
)

// Archive stores committed session documents in a storage backend,
// encrypted to an archive public key when one is configured.
type Archive struct {
	backend   interfaces.StorageBackend
	publicKey []byte
	log       *slog.Logger
}

// NewArchive creates an archive. publicKeyPEM is a PEM encoded P-256 public
// key, or nil to store documents in clear text.
func NewArchive(backend interfaces.StorageBackend, publicKeyPEM []byte, log *slog.Logger) *Archive {
	return &Archive{backend: backend, publicKey: publicKeyPEM, log: log}
}

// Archive stores document and returns the content id of the stored bytes.
func (a *Archive) Archive(ctx context.Context, session string, document []byte) (interfaces.ContentID, error) {
	data := document
	if len(a.publicKey) > 0 {
		encrypted, err := cryptoutils.EncryptWithPublicKey(a.publicKey, document)
		if err != nil {
			return interfaces.ContentID{}, fmt.Errorf("encrypting document of %s: %w", session, err)
		}
		data = encrypted
	}

	id, err := a.backend.Store(ctx, data, interfaces.PolicyType)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("archiving document of %s: %w", session, err)
	}

	a.log.Info("Archived session document",
		slog.String("session", session),
		slog.String("content_id", id.String()),
		slog.String("backend", a.backend.Name()),
		slog.Bool("encrypted", len(a.publicKey) > 0))
	return id, nil
}

// Retrieve returns an archived document, decrypting it with privateKeyPEM
// when it was stored encrypted.
func (a *Archive) Retrieve(ctx context.Context, id interfaces.ContentID, privateKeyPEM []byte) ([]byte, error) {
	data, err := a.backend.Fetch(ctx, id, interfaces.PolicyType)
	if err != nil {
		return nil, err
	}
	if len(privateKeyPEM) == 0 {
		return data, nil
	}
	return cryptoutils.DecryptWithPrivateKey(privateKeyPEM, data)
}
