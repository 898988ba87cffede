// Package implements construction of the S3 client used to ship rolled log files. Credentials,
// region, and endpoint are resolved from the upload configuration with a fixed precedence.

package s3client

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/y-scope/logroller/internal/config"
)

// AssumeRoleSessionName is the session name of every assumed role session.
const AssumeRoleSessionName = "LogrollerSession"

// Region used when neither the configuration nor the environment names one.
const defaultRegion = "us-east-1"

// BaseIdentity is the source of the credentials used directly, or used to call STS when a role is
// assumed.
type BaseIdentity int

// Base identities in increasing order of precedence.
const (
	DefaultChain BaseIdentity = iota
	Static
	Session
)

var baseIdentityNames = map[BaseIdentity]string{
	DefaultChain: "DefaultChain",
	Static:       "Static",
	Session:      "Session",
}

func (b BaseIdentity) String() string {
	return baseIdentityNames[b]
}

// CredentialPlan describes how credentials are obtained for an upload configuration.
type CredentialPlan struct {
	Base       BaseIdentity
	AssumeRole bool
}

// Plan decides the credential source. Assuming a role always wins when an ARN is present. Explicit
// keys beat the default chain, and a session token upgrades static keys to session credentials.
//
// Parameters:
//   - cfg: Upload configuration
//
// Returns:
//   - plan: Credential plan
func Plan(cfg config.Upload) CredentialPlan {
	plan := CredentialPlan{AssumeRole: cfg.AssumeRoleARN != ""}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		plan.Base = Static
		if cfg.SessionToken != "" {
			plan.Base = Session
		}
	}
	return plan
}

type options struct {
	httpClient  aws.HTTPClient
	loadOptions []func(*awsconfig.LoadOptions) error
}

// Option customizes client construction.
type Option func(*options)

// WithHTTPClient sets the HTTP client used by both S3 and STS.
func WithHTTPClient(client aws.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLoadOptions appends options passed to [awsconfig.LoadDefaultConfig].
func WithLoadOptions(fns ...func(*awsconfig.LoadOptions) error) Option {
	return func(o *options) {
		o.loadOptions = append(o.loadOptions, fns...)
	}
}

// Build creates an S3 client for cfg. Missing credentials are not an error; they are looked up
// from the environment by the default chain when the first request is signed.
//
// Parameters:
//   - ctx: Context for loading shared configuration
//   - cfg: Upload configuration
//   - opts: Construction options
//
// Returns:
//   - client: S3 client
//   - err: [config.ConfigurationError] for malformed region or endpoint, error loading shared
//     configuration
func Build(ctx context.Context, cfg config.Upload, opts ...Option) (*s3.Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Region != "" {
		if err := config.ValidateRegion(cfg.Region); err != nil {
			return nil, err
		}
	}

	var endpoint string
	if cfg.Endpoint != "" {
		u, err := config.ParseEndpoint(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		endpoint = u.String()
	}

	// Uploads are single-shot. A failure is logged by the scheduler and not retried.
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if o.httpClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(o.httpClient))
	}

	plan := Plan(cfg)
	switch plan.Base {
	case Static:
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	case Session:
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}
	loadOpts = append(loadOpts, o.loadOptions...)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}

	if plan.AssumeRole {
		// The STS client signs with the base identity already held by awsCfg.
		stsClient := sts.NewFromConfig(awsCfg, func(so *sts.Options) {
			if endpoint != "" {
				so.BaseEndpoint = aws.String(endpoint)
			}
		})
		provider := stscreds.NewAssumeRoleProvider(
			stsClient,
			cfg.AssumeRoleARN,
			func(ao *stscreds.AssumeRoleOptions) {
				ao.RoleSessionName = AssumeRoleSessionName
			},
		)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	usePathStyle := cfg.ForcePathStyle || endpoint != "" || cfg.Region != ""
	client := s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		so.UsePathStyle = usePathStyle
		if endpoint != "" {
			so.BaseEndpoint = aws.String(endpoint)
		}
	})

	return client, nil
}

// Resolver owns the lazily built [Client] of one scheduler. At most one client is built, even
// when several goroutines resolve concurrently. A failed construction is not cached so the next
// call tries again.
type Resolver struct {
	cfg   config.Upload
	build func(ctx context.Context) (Client, error)

	mu     sync.Mutex
	client Client
}

// NewResolver creates a resolver for cfg. Nothing is built until [Resolver.Resolve] is called.
func NewResolver(cfg config.Upload, opts ...Option) *Resolver {
	r := &Resolver{cfg: cfg}
	r.build = func(ctx context.Context) (Client, error) {
		api, err := Build(ctx, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return NewUploader(api, cfg), nil
	}
	return r
}

// Resolve returns the cached client, building it on first use.
//
// Parameters:
//   - ctx: Context for construction
//
// Returns:
//   - client: Cached client
//   - err: Error building client
func (r *Resolver) Resolve(ctx context.Context) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := r.build(ctx)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}
