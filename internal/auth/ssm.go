package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// DefaultSSMParam is the parameter read when SSM_API_KEY_PARAM is unset.
const DefaultSSMParam = "/muted-image-editor/prod/gemini-api-key"

// ParameterGetter is the subset of the SSM client used here.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewSSMClient loads the default AWS config and returns an SSM client.
func NewSSMClient(ctx context.Context) (*ssm.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return ssm.NewFromConfig(cfg), nil
}

// Resolver looks the API key up on every call: local sources first, then an
// SSM SecureString parameter if one is configured. The SSM value is cached for
// cacheTTL so a rotated parameter is picked up without a restart.
type Resolver struct {
	ssm      ParameterGetter
	param    string
	cacheTTL time.Duration
	local    func() (string, error)

	mu        sync.Mutex
	cached    string
	fetchedAt time.Time
}

// NewResolver returns a resolver. ssmClient may be nil to disable SSM.
func NewResolver(ssmClient ParameterGetter, param string) *Resolver {
	if param == "" {
		param = DefaultSSMParam
	}
	return &Resolver{
		ssm:      ssmClient,
		param:    param,
		cacheTTL: 5 * time.Minute,
		local:    GetAPIKey,
	}
}

// Key implements the key lookup used by the image client.
func (r *Resolver) Key(ctx context.Context) (string, error) {
	key, err := r.local()
	if err == nil && key != "" {
		return key, nil
	}
	if r.ssm == nil {
		return "", ErrNoAPIKey
	}
	return r.fromSSM(ctx)
}

func (r *Resolver) fromSSM(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != "" && time.Since(r.fetchedAt) < r.cacheTTL {
		return r.cached, nil
	}

	ssmStart := time.Now()
	result, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(r.param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Error().Err(err).Str("param", r.param).Msg("Failed to read API key from SSM")
		if r.cached != "" {
			return r.cached, nil
		}
		return "", fmt.Errorf("failed to read API key from SSM parameter %s: %w", r.param, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return "", errors.New("SSM parameter " + r.param + " is empty")
	}

	r.cached = aws.ToString(result.Parameter.Value)
	r.fetchedAt = time.Now()
	log.Debug().Str("param", r.param).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	return r.cached, nil
}
