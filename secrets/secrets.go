// Package secrets reads git credentials from AWS Secrets Manager so build
// hosts do not keep tokens in configuration files.
//
// Secret values are never logged; only secret names are.
package secrets

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/olavph/builds/config"
	"github.com/olavph/builds/errors"
)

// AWS error code constants
const (
	ResourceNotFoundException = "ResourceNotFoundException"
	AccessDeniedException     = "AccessDeniedException"
)

var (
	// ErrSecretNotFound is returned when the named secret does not exist.
	ErrSecretNotFound = stderrors.New("secret not found")

	// ErrSecretEmpty is returned when a secret exists but holds no value.
	ErrSecretEmpty = stderrors.New("secret value is empty")

	// ErrAccessDenied is returned when the caller may not read the secret.
	ErrAccessDenied = stderrors.New("access denied to secret")
)

// ManagerAPI is the subset of the Secrets Manager client in use.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// Client reads secret values.
type Client struct {
	api    ManagerAPI
	logger *slog.Logger
}

// NewClient creates a client from the default AWS configuration chain
// (environment, shared config, instance role).
func NewClient(ctx context.Context, logger *slog.Logger) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewClientWithAPI(secretsmanager.NewFromConfig(cfg), logger), nil
}

// NewClientWithAPI wraps an existing Secrets Manager API.
func NewClientWithAPI(api ManagerAPI, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{api: api, logger: logger}
}

// GetSecret returns the current value of the secret name, string or binary.
func (c *Client) GetSecret(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New(errors.CodeInvalidInput, "secret name cannot be empty")
	}

	output, err := c.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case ResourceNotFoundException:
				return "", errors.WrapWithContext(ErrSecretNotFound, errors.CodeNotFound, "failed to get secret",
					map[string]interface{}{"secret": name})
			case AccessDeniedException:
				return "", errors.WrapWithContext(ErrAccessDenied, errors.CodeInvalidConfig, "failed to get secret",
					map[string]interface{}{"secret": name})
			}
		}

		c.logger.ErrorContext(ctx, "failed to retrieve secret", "secret", name, "error", err)
		return "", errors.WrapWithContext(err, errors.CodeInternal, "failed to get secret",
			map[string]interface{}{"secret": name})
	}

	switch {
	case output.SecretString != nil && *output.SecretString != "":
		c.logger.DebugContext(ctx, "secret retrieved", "secret", name)
		return *output.SecretString, nil
	case len(output.SecretBinary) > 0:
		c.logger.DebugContext(ctx, "secret retrieved", "secret", name)
		return string(output.SecretBinary), nil
	default:
		return "", errors.WrapWithContext(ErrSecretEmpty, errors.CodeNotFound, "failed to get secret",
			map[string]interface{}{"secret": name})
	}
}

// Getter returns secret values by name.
type Getter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ResolveToken sets creds.Token from the secret named creds.TokenSecret.
// A token already present wins and no lookup is made.
func ResolveToken(ctx context.Context, g Getter, creds *config.Credentials) error {
	if creds.Token != "" || creds.TokenSecret == "" {
		return nil
	}

	token, err := g.GetSecret(ctx, creds.TokenSecret)
	if err != nil {
		return err
	}

	creds.Token = token
	return nil
}
