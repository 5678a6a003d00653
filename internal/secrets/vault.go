package secrets

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// VaultConfig configures the Vault resolver. Only token authentication is
// wired; richer auth methods (AppRole, Kubernetes) are out of scope for a
// connection pool's credential bootstrap.
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string
	MountPath string // KV v2 mount, default "secret"
	CacheTTL  time.Duration
}

// VaultResolver resolves a secret field from Vault's KV v2 engine.
type VaultResolver struct {
	client    *vault.Client
	mountPath string
	logger    *zap.Logger
	cache     *cache
}

// NewVaultResolver builds a VaultResolver authenticated with a static token.
func NewVaultResolver(cfg VaultConfig, logger *zap.Logger) (*VaultResolver, error) {
	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}

	return &VaultResolver{
		client:    client,
		mountPath: mount,
		logger:    logger,
		cache:     newCache(cfg.CacheTTL),
	}, nil
}

// Resolve reads path from the KV v2 engine and returns its "value" field.
func (r *VaultResolver) Resolve(ctx context.Context, path string) (string, error) {
	if v, ok := r.cache.get(path); ok {
		return v, nil
	}

	secret, err := r.client.KVv2(r.mountPath).Get(ctx, path)
	if err != nil {
		r.logger.Error("failed to read secret from Vault", zap.String("path", path), zap.Error(err))
		return "", fmt.Errorf("read vault secret %s: %w", path, err)
	}

	raw, ok := secret.Data["value"]
	if !ok {
		return "", fmt.Errorf("vault secret %s has no \"value\" field", path)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault secret %s field \"value\" is not a string", path)
	}

	r.cache.set(path, value)
	return value, nil
}
