package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/commission-service/internal/adapters/ports"
)

// localSecretManager reads secrets from plain files under a base
// directory. Development and CI only; production resolves the provider
// credential through AWS Secrets Manager.
type localSecretManager struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalSecretManager creates a filesystem-backed secret manager
// rooted at basePath
func NewLocalSecretManager(basePath string, logger *zap.Logger) ports.SecretManagerAdapter {
	return &localSecretManager{basePath: basePath, logger: logger}
}

// GetSecret reads the file at basePath/secretPath. A JSON body with a
// "value" field is unwrapped; anything else is returned verbatim with
// surrounding whitespace trimmed.
func (m *localSecretManager) GetSecret(ctx context.Context, secretPath string) (*ports.Secret, error) {
	fullPath := filepath.Join(m.basePath, secretPath)

	data, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("secret not found: %s", secretPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read secret %s: %w", secretPath, err)
	}

	m.logger.Debug("Loaded secret from filesystem",
		zap.String("path", secretPath),
	)

	var wrapped struct {
		Value     string            `json:"value"`
		Tags      map[string]string `json:"tags"`
		CreatedAt string            `json:"created_at"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Value != "" {
		return &ports.Secret{
			Value:     wrapped.Value,
			Version:   "v1",
			Metadata:  wrapped.Tags,
			CreatedAt: wrapped.CreatedAt,
		}, nil
	}

	return &ports.Secret{
		Value:   strings.TrimSpace(string(data)),
		Version: "v1",
	}, nil
}
