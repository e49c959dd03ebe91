// Package models lists the LLM models a provider exposes, either directly
// from the upstream server or through the console's proxy endpoint.
package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/sashabaranov/go-openai"

	"github.com/kdu3142/old-Iara/internal/settings"
)

// DefaultTimeout bounds a single upstream listing request.
const DefaultTimeout = 10 * time.Second

const (
	ollamaTagsPath     = "/api/tags"
	placeholderAPIKey  = "local"
	logFmtListed       = "Listed %d models from %s (%s)"
	logFmtListFailed   = "Model listing from %s (%s) failed: %v"
	errFmtUpstreamCode = "%w: %s returned %d"
)

var (
	// ErrInvalidBaseURL is returned for base URLs that are not absolute http(s) URLs.
	ErrInvalidBaseURL = errors.New("invalid base URL")
	// ErrUnknownProvider is returned for providers outside the supported set.
	ErrUnknownProvider = errors.New("unknown LLM provider")
	// ErrUpstream is returned when the provider is unreachable or answers badly.
	ErrUpstream = errors.New("model provider unavailable")
)

var versionSuffix = regexp.MustCompile(`/v\d+$`)

// Lister queries providers for their model names.
type Lister struct {
	httpClient *http.Client
	apiKey     string
	log        *logger.Logger
}

// NewLister creates a lister. An empty apiKey sends a placeholder, which
// local openai-compatible servers accept.
func NewLister(httpClient *http.Client, apiKey string, log *logger.Logger) *Lister {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	if apiKey == "" {
		apiKey = placeholderAPIKey
	}

	return &Lister{httpClient: httpClient, apiKey: apiKey, log: log}
}

// List returns the model names the provider at baseURL serves.
func (l *Lister) List(ctx context.Context, provider, baseURL string) ([]string, error) {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	var names []string

	switch provider {
	case settings.ProviderOllama:
		names, err = l.listOllama(ctx, StripVersion(base))
	case settings.ProviderOpenAICompatible, "":
		provider = settings.ProviderOpenAICompatible
		names, err = l.listOpenAI(ctx, base)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	if err != nil {
		l.log.Warn(logFmtListFailed, base, provider, err)

		return nil, err
	}

	l.log.Info(logFmtListed, len(names), base, provider)

	return names, nil
}

// NormalizeBaseURL validates an absolute http(s) URL and trims trailing
// slashes.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}

	return trimmed, nil
}

// StripVersion removes a trailing API-version segment such as /v1.
func StripVersion(base string) string {
	return versionSuffix.ReplaceAllString(strings.TrimRight(base, "/"), "")
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (l *Lister) listOllama(ctx context.Context, base string) ([]string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, base+ollamaTagsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tags request: %w", err)
	}

	response, err := l.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf(errFmtUpstreamCode, ErrUpstream, base, response.StatusCode)
	}

	var tags ollamaTags

	decodeErr := json.NewDecoder(response.Body).Decode(&tags)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: malformed tags response: %w", ErrUpstream, decodeErr)
	}

	names := make([]string, 0, len(tags.Models))
	for _, model := range tags.Models {
		if model.Name != "" {
			names = append(names, model.Name)
		}
	}

	return names, nil
}

func (l *Lister) listOpenAI(ctx context.Context, base string) ([]string, error) {
	clientConfig := openai.DefaultConfig(l.apiKey)
	clientConfig.BaseURL = base
	clientConfig.HTTPClient = l.httpClient

	client := openai.NewClientWithConfig(clientConfig)

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	names := make([]string, 0, len(list.Models))
	for _, model := range list.Models {
		if model.ID != "" {
			names = append(names, model.ID)
		}
	}

	return names, nil
}
