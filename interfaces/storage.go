package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ContentID is the SHA-256 of archived bytes.
type ContentID [32]byte

// ParseContentID parses the hex form printed by ContentID.String. A 0x
// prefix is accepted.
func ParseContentID(s string) (ContentID, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid content id %q: %w", s, err)
	}
	var id ContentID
	if len(raw) != len(id) {
		return ContentID{}, fmt.Errorf("invalid content id %q: want %d bytes, got %d", s, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// ContentType partitions the archive.
type ContentType int

const (
	// PolicyType holds rendered documents accepted by the session store.
	PolicyType ContentType = iota
)

func (ct ContentType) String() string {
	switch ct {
	case PolicyType:
		return "policy"
	default:
		return "unknown"
	}
}

// StorageBackendLocation is a parsed archive URI,
// scheme://[key:secret@]host[:port][/path][?params].
type StorageBackendLocation struct {
	Scheme string
	Host   string
	Path   string
	Query  url.Values

	uri  string
	user *url.Userinfo
}

// NewStorageBackendLocation parses uri. Only the file, s3 and ipfs schemes
// are accepted.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "ipfs":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		uri:    uri,
		user:   parsed.User,
	}, nil
}

func (loc StorageBackendLocation) String() string {
	return loc.uri
}

func (loc StorageBackendLocation) Param(name string) string {
	return loc.Query.Get(name)
}

// Flag reports whether the query parameter name is set to a true value
// ("1", "t", "true", ...). Unparsable values are false.
func (loc StorageBackendLocation) Flag(name string) bool {
	v, err := strconv.ParseBool(loc.Query.Get(name))
	return err == nil && v
}

// Credentials returns the key and secret embedded in the URI, if any.
func (loc StorageBackendLocation) Credentials() (key, secret string, ok bool) {
	if loc.user == nil {
		return "", "", false
	}
	secret, _ = loc.user.Password()
	return loc.user.Username(), secret, true
}

var (
	// ErrContentNotFound is returned when no backend holds the requested content.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned for malformed or unsupported archive URIs.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend is content-addressed storage for archived documents.
type StorageBackend interface {
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)

	// Store saves data and returns ComputeID(data).
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	Available(ctx context.Context) bool

	// Name identifies the backend in logs.
	Name() string

	LocationURI() string
}
