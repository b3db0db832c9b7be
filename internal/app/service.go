package app

import (
	"net/http"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"comlinepm/internal/adapters"
	"comlinepm/internal/auth"
	"comlinepm/internal/auth/oidc"
	"comlinepm/internal/core"
	"comlinepm/internal/ports"
	"comlinepm/internal/telemetry"
)

const defaultPublishWorkers = 4

type Service struct {
	Manifests   ports.ManifestStorePort
	Artifacts   ports.ArtifactPort
	Registries  ports.RegistryConfigPort
	Publishers  ports.PublisherFactoryPort
	Sessions    ports.SessionStorePort
	Credentials ports.CredentialSourcePort
	Auth        ports.AuthenticatorPort
	Freezer     core.Freezer
	Metrics     *telemetry.PublishMetrics
	Tracer      trace.Tracer
	PublishOpts PublishOptions
	Clock       func() time.Time
}

// PublishOptions bounds the publish fan-out. Timeout <= 0 disables the
// overall deadline.
type PublishOptions struct {
	Workers int
	Timeout time.Duration
}

// ServiceConfig is everything NewService needs from configuration.
type ServiceConfig struct {
	Viper               *viper.Viper
	Env                 adapters.CredentialEnv
	HTTPClient          *http.Client
	GithubAPIURL        string
	OIDCAudience        string
	PublishWorkers      int
	PublishTimeout      time.Duration
	PublishRetries      int
	PublishRetryDelayMs int
	HomeDir             string
	Metrics             *telemetry.PublishMetrics
}

func NewService(cfg ServiceConfig) Service {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	clock := time.Now
	providers := oidc.NewRegistry(oidc.DefaultProviders(oidc.Config{
		Exchanger:           oidc.Exchanger{Client: client, Now: clock},
		ActionsRequestURL:   cfg.Env.ActionsRequestURL,
		ActionsRequestToken: cfg.Env.ActionsRequestToken,
	})...)
	authenticator := auth.NewAuthenticator(auth.Options{
		HTTPClient:   client,
		GithubAPIURL: cfg.GithubAPIURL,
		OIDCAudience: cfg.OIDCAudience,
		Keys:         adapters.NewSSHKeyFileAdapter(cfg.Env.SSHKeyPath, cfg.HomeDir),
		OIDC:         providers,
		Now:          clock,
	})
	return Service{
		Manifests:   adapters.NewManifestFileAdapter(),
		Artifacts:   adapters.NewArtifactTarAdapter(),
		Registries:  adapters.NewRegistryConfigViperAdapter(cfg.Viper),
		Publishers:  adapters.NewPublisherFactory(client, cfg.PublishRetries, cfg.PublishRetryDelayMs, cfg.Env.S3Settings()),
		Sessions:    adapters.NewSessionMemoryAdapter(),
		Credentials: adapters.NewEnvCredentialAdapter(cfg.Env),
		Auth:        authenticator,
		Freezer:     core.NewFreezer(),
		Metrics:     cfg.Metrics,
		Tracer:      telemetry.Tracer(),
		PublishOpts: PublishOptions{
			Workers: cfg.PublishWorkers,
			Timeout: cfg.PublishTimeout,
		},
		Clock: clock,
	}
}

func (s Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s Service) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}
	return telemetry.Tracer()
}

func (s Service) publishWorkers() int {
	if s.PublishOpts.Workers <= 0 {
		return defaultPublishWorkers
	}
	return s.PublishOpts.Workers
}
