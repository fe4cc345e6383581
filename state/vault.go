package state

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/scone-policy-sessions/interfaces"
)

const vaultStateKey = "state"

var _ interfaces.StateStore = (*VaultStore)(nil)

// VaultStore keeps the record in a Vault KV v2 secret. The token is taken
// from the VAULT_TOKEN environment variable unless set explicitly.
type VaultStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	defaults    interfaces.StateDefaults
	log         *slog.Logger
	locationURI string
}

// NewVaultStore creates a store for the secret dataPath in the KV v2 engine
// mounted at mountPath.
//
// Parameters:
//
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount (e.g. "secret")
//   - dataPath: secret path within the mount (e.g. "scone/otp")
//   - token: Vault token, "" to use VAULT_TOKEN
func NewVaultStore(address, mountPath, dataPath, token string, defaults interfaces.StateDefaults, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")
	if mountPath == "" || dataPath == "" {
		return nil, fmt.Errorf("vault state store requires a mount and a path")
	}

	return &VaultStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		defaults:    defaults,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

func (s *VaultStore) path() string {
	return fmt.Sprintf("%s/data/%s", s.mountPath, s.dataPath)
}

func (s *VaultStore) Load(ctx context.Context) (interfaces.PolicyState, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.path())
	if err != nil {
		s.log.Error("Failed to read state from Vault", slog.String("path", s.path()), "err", err)
		return interfaces.PolicyState{}, fmt.Errorf("reading state from vault: %w", err)
	}
	if secret == nil || secret.Data == nil || secret.Data["data"] == nil {
		s.log.Info("No state in Vault, initializing state", slog.String("path", s.path()))
		return s.defaults()
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return interfaces.PolicyState{}, fmt.Errorf("%w: %s: invalid data format in Vault response", interfaces.ErrCorruptState, s.locationURI)
	}
	content, ok := data[vaultStateKey].(string)
	if !ok {
		return interfaces.PolicyState{}, fmt.Errorf("%w: %s: state key not found in Vault data", interfaces.ErrCorruptState, s.locationURI)
	}
	return decodeState([]byte(content), s.locationURI)
}

func (s *VaultStore) Save(ctx context.Context, state interfaces.PolicyState) error {
	content, err := encodeState(state)
	if err != nil {
		return err
	}

	_, err = s.client.Logical().WriteWithContext(ctx, s.path(), map[string]interface{}{
		"data": map[string]interface{}{
			vaultStateKey: string(content),
		},
	})
	if err != nil {
		s.log.Error("Failed to write state to Vault", slog.String("path", s.path()), "err", err)
		return fmt.Errorf("writing state to vault: %w", err)
	}
	s.log.Debug("Written state to Vault", slog.String("path", s.path()))
	return nil
}

func (s *VaultStore) LocationURI() string {
	return s.locationURI
}
