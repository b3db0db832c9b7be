package adapters

import (
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/caarlos0/env/v11"

	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

// CredentialEnv is the credential material the process environment can
// provide for implicit logins.
type CredentialEnv struct {
	GithubToken         string `env:"COMLINEPM_GITHUB_TOKEN"`
	SSHKeyPath          string `env:"COMLINEPM_SSH_KEY"`
	SSHPassphrase       string `env:"COMLINEPM_SSH_PASSPHRASE"`
	IDToken             string `env:"COMLINEPM_ID_TOKEN"`
	GitlabJobJWT        string `env:"CI_JOB_JWT_V2"`
	ActionsRequestURL   string `env:"ACTIONS_ID_TOKEN_REQUEST_URL"`
	ActionsRequestToken string `env:"ACTIONS_ID_TOKEN_REQUEST_TOKEN"`
	AWSRegion           string `env:"AWS_REGION"`
	AWSAccessKeyID      string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey  string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSSessionToken     string `env:"AWS_SESSION_TOKEN"`
	S3Endpoint          string `env:"COMLINEPM_S3_ENDPOINT"`
}

// LoadCredentialEnv reads CredentialEnv from the process environment, or
// from environ when it is non-nil.
func LoadCredentialEnv(environ map[string]string) (CredentialEnv, error) {
	var cfg CredentialEnv
	var err error
	if environ != nil {
		err = env.ParseWithOptions(&cfg, env.Options{Environment: environ})
	} else {
		err = env.Parse(&cfg)
	}
	if err != nil {
		return CredentialEnv{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to read credential environment").
			WithCause(err)
	}
	return cfg, nil
}

func (c CredentialEnv) S3Settings() S3Settings {
	return S3Settings{
		Region:          c.AWSRegion,
		Endpoint:        c.S3Endpoint,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		SessionToken:    c.AWSSessionToken,
	}
}

// EnvCredentialAdapter hands out environment credentials per login method.
type EnvCredentialAdapter struct {
	Env CredentialEnv
}

func NewEnvCredentialAdapter(cfg CredentialEnv) EnvCredentialAdapter {
	return EnvCredentialAdapter{Env: cfg}
}

func (a EnvCredentialAdapter) Credential(method string) (types.Secret, bool) {
	var value string
	switch method {
	case "github":
		value = a.Env.GithubToken
	case "ssh":
		value = a.Env.SSHPassphrase
	case "gitlab":
		value = firstNonEmpty(a.Env.IDToken, a.Env.GitlabJobJWT)
	case "github_oidc":
		value = a.Env.IDToken
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return types.Secret(value), true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

var _ ports.CredentialSourcePort = EnvCredentialAdapter{}
