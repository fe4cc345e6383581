// Package storage archives committed session documents in content-addressed
// backends.
//
// Every document the session store accepts is kept so that a session can be
// audited or recreated later. A document is addressed by the SHA-256 of the
// stored bytes, which are the ECIES ciphertext when an archive public key is
// configured.
//
// # Backends
//
//   - file:///var/lib/scone/archive     local directory, one subdirectory per content type
//   - s3://bucket/prefix?region=eu-west-1&endpoint=minio.local:9000
//   - ipfs://localhost:5001/?timeout=30s
//
// Several backends may be combined with MultiStorageBackend, which writes to
// all available backends and reads from the first that has the content.
//
// # Usage
//
//	factory := storage.NewStorageBackendFactory(log)
//	backend, err := factory.CreateMultiBackend([]string{"file://archive", "s3://bucket/docs"})
//	if err != nil {
//	    return err
//	}
//	archive := storage.NewArchive(backend, pubKeyPEM, log)
//	reconciler := session.NewReconciler(service, log).WithArchiver(archive)
package storage
