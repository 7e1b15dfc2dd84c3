package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/kevin07696/commission-service/internal/adapters/ports"
)

// AWSSecretsManagerConfig configures the AWS Secrets Manager adapter
type AWSSecretsManagerConfig struct {
	Region string

	// Profile selects a shared-config profile for local development;
	// empty uses the default credentials chain (IAM role in production)
	Profile string

	// Endpoint overrides the service endpoint, used with LocalStack
	Endpoint string

	// CacheTTL bounds how stale a cached secret may get. The provider
	// API key is read once at startup, but cron-triggered re-reads
	// should not hammer the API.
	CacheTTL    time.Duration
	EnableCache bool
}

func DefaultAWSSecretsManagerConfig(region string) *AWSSecretsManagerConfig {
	return &AWSSecretsManagerConfig{
		Region:      region,
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

type awsSecretsManagerAdapter struct {
	client *secretsmanager.Client
	config *AWSSecretsManagerConfig
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	secret    *ports.Secret
	expiresAt time.Time
}

// NewAWSSecretsManagerAdapter builds the client from the default AWS
// config chain, honoring an explicit profile or endpoint override
func NewAWSSecretsManagerAdapter(ctx context.Context, cfg *AWSSecretsManagerConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsConfig, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("AWS Secrets Manager adapter initialized",
		zap.String("region", cfg.Region),
		zap.Bool("cache_enabled", cfg.EnableCache),
	)

	return &awsSecretsManagerAdapter{
		client: client,
		config: cfg,
		logger: logger,
		cache:  make(map[string]cachedSecret),
	}, nil
}

// GetSecret resolves a secret by name or full ARN, e.g.
// "commission-service/provider/api-key"
func (a *awsSecretsManagerAdapter) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if secret := a.cachedGet(path); secret != nil {
		return secret, nil
	}

	started := time.Now()
	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(path),
	})
	if err != nil {
		a.logger.Error("Failed to retrieve secret",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get secret %s: %w", path, err)
	}

	a.logger.Info("Secret retrieved",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(started)),
	)

	secret := &ports.Secret{
		Value:    aws.ToString(result.SecretString),
		Version:  aws.ToString(result.VersionId),
		Metadata: map[string]string{},
	}
	if result.CreatedDate != nil {
		secret.CreatedAt = result.CreatedDate.Format(time.RFC3339)
	}
	if result.ARN != nil {
		secret.Metadata["arn"] = *result.ARN
	}
	if result.Name != nil {
		secret.Metadata["name"] = *result.Name
	}

	a.cachedPut(path, secret)
	return secret, nil
}

func (a *awsSecretsManagerAdapter) cachedGet(path string) *ports.Secret {
	if !a.config.EnableCache {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.cache[path]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(a.cache, path)
		return nil
	}
	return entry.secret
}

func (a *awsSecretsManagerAdapter) cachedPut(path string, secret *ports.Secret) {
	if !a.config.EnableCache {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cache[path] = cachedSecret{
		secret:    secret,
		expiresAt: time.Now().Add(a.config.CacheTTL),
	}
}
