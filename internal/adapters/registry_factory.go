package adapters

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

// PublisherFactory selects a publisher by the scheme of the registry URL.
type PublisherFactory struct {
	HTTPClient   *http.Client
	Retries      int
	RetryDelayMs int
	S3           S3Settings
}

func NewPublisherFactory(client *http.Client, retries int, retryDelayMs int, s3 S3Settings) PublisherFactory {
	return PublisherFactory{
		HTTPClient:   client,
		Retries:      retries,
		RetryDelayMs: retryDelayMs,
		S3:           s3,
	}
}

func (f PublisherFactory) PublisherFor(target types.RegistryTarget) (ports.PublisherPort, error) {
	raw := strings.TrimSpace(target.URL)
	if raw == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("registry " + target.Name + " has no url")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("registry " + target.Name + " has an invalid url").
			WithCause(err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "file":
		return NewRegistryFileAdapterFromURL(raw)
	case "http", "https":
		return NewRegistryHTTPAdapter(f.HTTPClient, f.Retries, f.RetryDelayMs), nil
	case "s3":
		return NewRegistryS3AdapterFromURL(raw, f.S3)
	default:
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("unsupported registry scheme " + parsed.Scheme)
	}
}

var _ ports.PublisherFactoryPort = PublisherFactory{}
