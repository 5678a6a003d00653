package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"
)

// AWSConfig configures the AWS Secrets Manager resolver.
type AWSConfig struct {
	Region   string
	Profile  string
	Endpoint string // LocalStack / custom endpoint for local dev
	CacheTTL time.Duration
}

// AWSResolver resolves a secret's SecretString from AWS Secrets Manager.
type AWSResolver struct {
	client *secretsmanager.Client
	logger *zap.Logger
	cache  *cache
}

// NewAWSResolver builds an AWSResolver from cfg.
func NewAWSResolver(ctx context.Context, cfg AWSConfig, logger *zap.Logger) (*AWSResolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var clientOpts []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &AWSResolver{
		client: secretsmanager.NewFromConfig(awsCfg, clientOpts...),
		logger: logger,
		cache:  newCache(cfg.CacheTTL),
	}, nil
}

// Resolve returns the secret string at path, e.g. an ARN or friendly name
// pointing at the database credentials.
func (r *AWSResolver) Resolve(ctx context.Context, path string) (string, error) {
	if v, ok := r.cache.get(path); ok {
		return v, nil
	}

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(path),
	})
	if err != nil {
		r.logger.Error("failed to retrieve secret from Secrets Manager", zap.String("path", path), zap.Error(err))
		return "", fmt.Errorf("get secret %s: %w", path, err)
	}

	value := aws.ToString(out.SecretString)
	r.cache.set(path, value)
	return value, nil
}
