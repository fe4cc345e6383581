package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"

	"github.com/ruteri/scone-policy-sessions/interfaces"
)

var _ interfaces.SessionService = (*MemoryService)(nil)

// Operation names a SessionService operation for call counting and fault injection.
type Operation string

const (
	OpRead   Operation = "read"
	OpVerify Operation = "verify"
	OpCheck  Operation = "check"
	OpCreate Operation = "create"
)

// MemoryService is an in-memory session store. It hash-chains sessions the
// way the remote store does: a document updating an existing session must name
// the current hash as its predecessor.
type MemoryService struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	failures map[Operation]error

	reads    atomic.Int64
	verifies atomic.Int64
	checks   atomic.Int64
	creates  atomic.Int64
}

type memorySession struct {
	content string
	hash    string
}

// policyHeader is the subset of a session document the store interprets.
type policyHeader struct {
	Name        string `yaml:"name"`
	Predecessor string `yaml:"predecessor"`
}

func NewMemoryService() *MemoryService {
	return &MemoryService{
		sessions: make(map[string]memorySession),
		failures: make(map[Operation]error),
	}
}

// FailOn makes every subsequent call of op fail with err. A nil err clears it.
func (m *MemoryService) FailOn(op Operation, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op was invoked.
func (m *MemoryService) Calls(op Operation) int64 {
	switch op {
	case OpRead:
		return m.reads.Load()
	case OpVerify:
		return m.verifies.Load()
	case OpCheck:
		return m.checks.Load()
	case OpCreate:
		return m.creates.Load()
	}
	return 0
}

// Hash returns the current hash of a session, or "" when it does not exist.
func (m *MemoryService) Hash(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[name].hash
}

// Content returns the current document of a session.
func (m *MemoryService) Content(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[name].content
}

func (m *MemoryService) ReadSession(ctx context.Context, name string) (string, error) {
	m.reads.Inc()
	if err := m.failure(OpRead); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", interfaces.ErrSessionNotFound, name)
	}
	return s.content, nil
}

func (m *MemoryService) VerifySession(ctx context.Context, content string) (string, error) {
	m.verifies.Inc()
	if err := m.failure(OpVerify); err != nil {
		return "", err
	}
	header, err := parseHeader(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrSessionVerifyFailed, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[header.Name]
	if !ok || s.content != content {
		return "", fmt.Errorf("%w: content of %s does not match store", interfaces.ErrSessionVerifyFailed, header.Name)
	}
	return s.hash, nil
}

func (m *MemoryService) CheckDocument(ctx context.Context, document string) error {
	m.checks.Inc()
	if err := m.failure(OpCheck); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.validate(document)
	return err
}

func (m *MemoryService) CreateSession(ctx context.Context, document string) (string, error) {
	m.creates.Inc()
	if err := m.failure(OpCreate); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	header, err := m.validate(document)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrSessionCreateFailed, err)
	}

	sum := sha256.Sum256([]byte(header.Predecessor + "\n" + document))
	hash := hex.EncodeToString(sum[:])
	m.sessions[header.Name] = memorySession{content: document, hash: hash}
	return hash, nil
}

// validate must be called with mu held.
func (m *MemoryService) validate(document string) (policyHeader, error) {
	header, err := parseHeader(document)
	if err != nil {
		return policyHeader{}, fmt.Errorf("%w: %v", interfaces.ErrTemplateInvalid, err)
	}
	if header.Name == "" {
		return policyHeader{}, fmt.Errorf("%w: missing session name", interfaces.ErrTemplateInvalid)
	}
	if i := strings.LastIndex(header.Name, "/"); i > 0 {
		if _, ok := m.sessions[header.Name[:i]]; !ok {
			return policyHeader{}, fmt.Errorf("%w: parent session %s does not exist", interfaces.ErrTemplateInvalid, header.Name[:i])
		}
	}

	current, exists := m.sessions[header.Name]
	switch {
	case exists && header.Predecessor != current.hash:
		return policyHeader{}, fmt.Errorf("%w: predecessor of %s must be %s", interfaces.ErrTemplateInvalid, header.Name, current.hash)
	case !exists && header.Predecessor != "":
		return policyHeader{}, fmt.Errorf("%w: session %s has no predecessor", interfaces.ErrTemplateInvalid, header.Name)
	}
	return header, nil
}

func (m *MemoryService) failure(op Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[op]
}

func parseHeader(document string) (policyHeader, error) {
	var header policyHeader
	if err := yaml.Unmarshal([]byte(document), &header); err != nil {
		return policyHeader{}, err
	}
	return header, nil
}
