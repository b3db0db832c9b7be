package cli

import (
	"net/http"
	"time"

	"github.com/spf13/viper"

	"comlinepm/internal/adapters"
	"comlinepm/internal/app"
	"comlinepm/internal/auth"
	"comlinepm/internal/telemetry"
)

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("path", ".")
	v.SetDefault("publish.workers", 4)
	v.SetDefault("publish.timeout_sec", 0)
	v.SetDefault("publish.retries", 3)
	v.SetDefault("publish.retry_delay_ms", 200)
	v.SetDefault("auth.github_api_url", auth.DefaultGithubAPIURL)
	v.SetDefault("auth.oidc_audience", auth.DefaultOIDCAudience)
	v.SetDefault("build.output", "")
	v.SetDefault("publish.registries", []string{})
	v.SetDefault("telemetry.otlp_endpoint", "")
}

func newAppService(metrics *telemetry.PublishMetrics) (app.Service, error) {
	env, err := adapters.LoadCredentialEnv(nil)
	if err != nil {
		return app.Service{}, err
	}
	return app.NewService(app.ServiceConfig{
		Viper:               viper.GetViper(),
		Env:                 env,
		HTTPClient:          &http.Client{Timeout: 60 * time.Second},
		GithubAPIURL:        viper.GetString("auth.github_api_url"),
		OIDCAudience:        viper.GetString("auth.oidc_audience"),
		PublishWorkers:      viper.GetInt("publish.workers"),
		PublishTimeout:      app.PublishDeadline(viper.GetInt("publish.timeout_sec")),
		PublishRetries:      viper.GetInt("publish.retries"),
		PublishRetryDelayMs: viper.GetInt("publish.retry_delay_ms"),
		Metrics:             metrics,
	}), nil
}
