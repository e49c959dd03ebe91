// Package client talks to a running voice console over HTTP. It backs the
// preset manager, uploads captured reference audio and proxies model
// listings for the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/kdu3142/old-Iara/internal/api"
	"github.com/kdu3142/old-Iara/internal/settings"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errFmtServiceError       = "voice console error (%s): %s"
	errFmtServiceNonOKStatus = "voice console returned non-OK status: %s, body: %s"
	errFmtSendRequest        = "failed to send request to voice console at %s: %w"
	errFmtCreateRequest      = "failed to create request: %w"
	errFmtDecodeResponse     = "failed to decode response: %w"
	errFailedToCreateForm    = "failed to create form file: %w"
	errFailedToWriteForm     = "failed to write form data: %w"
	errFailedToCloseWriter   = "failed to close multipart writer: %w"
	uploadFileNamePrefix     = "reference."
)

// ErrEmptyUpload is returned when asked to upload no audio.
var ErrEmptyUpload = errors.New("reference audio is empty")

// HTTPClient is a client for the voice console HTTP API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates a client. The baseURL should include the protocol
// and port (e.g. "http://127.0.0.1:7860").
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Load fetches the canonical settings store.
func (c *HTTPClient) Load(ctx context.Context) (settings.Store, error) {
	var store settings.Store

	err := c.doJSON(ctx, http.MethodGet, api.PathSettings, nil, &store)
	if err != nil {
		return settings.Store{}, err
	}

	return store, nil
}

// Save posts the store and returns the server's normalized version.
func (c *HTTPClient) Save(ctx context.Context, store settings.Store) (settings.Store, error) {
	return c.SaveRaw(ctx, store.ToMap())
}

// SaveRaw posts an arbitrary settings document.
func (c *HTTPClient) SaveRaw(ctx context.Context, raw map[string]any) (settings.Store, error) {
	body, err := json.Marshal(raw)
	if err != nil {
		return settings.Store{}, fmt.Errorf("failed to marshal settings: %w", err)
	}

	var store settings.Store

	err = c.doJSON(ctx, http.MethodPost, api.PathSettings, bytes.NewReader(body), &store)
	if err != nil {
		return settings.Store{}, err
	}

	return store, nil
}

// Upload sends reference audio as the multipart "audio" field and returns
// the stored path.
func (c *HTTPClient) Upload(ctx context.Context, data []byte, extension string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyUpload
	}

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(api.FormFieldAudio, uploadFileNamePrefix+extension)
	if err != nil {
		return "", fmt.Errorf(errFailedToCreateForm, err)
	}

	_, err = part.Write(data)
	if err != nil {
		return "", fmt.Errorf(errFailedToWriteForm, err)
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return "", fmt.Errorf(errFailedToCloseWriter, closeErr)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+api.PathReferenceAudio, &buf)
	if err != nil {
		return "", fmt.Errorf(errFmtCreateRequest, err)
	}

	request.Header.Set(headerContentType, writer.FormDataContentType())
	request.Header.Set(headerAccept, contentTypeJSON)

	var stored struct {
		Path     string `json:"path"`
		FileName string `json:"fileName"`
	}

	err = c.send(request, &stored)
	if err != nil {
		return "", err
	}

	return stored.Path, nil
}

// DownloadReferenceAudio fetches a stored recording and its content type.
func (c *HTTPClient) DownloadReferenceAudio(ctx context.Context, path string) ([]byte, string, error) {
	endpoint := c.baseURL + api.PathReferenceAudio + "?" + url.Values{api.QueryPath: {path}}.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf(errFmtCreateRequest, err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, "", fmt.Errorf(errFmtSendRequest, c.baseURL, err)
	}

	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return nil, "", parseErrorResponse(response)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read reference audio: %w", err)
	}

	return data, response.Header.Get(headerContentType), nil
}

// List asks the console to list the provider's models.
func (c *HTTPClient) List(ctx context.Context, provider, baseURL string) ([]string, error) {
	query := url.Values{api.QueryProvider: {provider}, api.QueryBaseURL: {baseURL}}

	var body api.ModelsResponse

	err := c.doJSON(ctx, http.MethodGet, api.PathModels+"?"+query.Encode(), nil, &body)
	if err != nil {
		return nil, err
	}

	return body.Models, nil
}

// HealthCheck verifies that the console is running.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	var health api.HealthResponse

	return c.doJSON(ctx, http.MethodGet, api.PathHealth, nil, &health)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body io.Reader, target any) error {
	if body == nil {
		body = http.NoBody
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf(errFmtCreateRequest, err)
	}

	request.Header.Set(headerAccept, contentTypeJSON)

	if method == http.MethodPost {
		request.Header.Set(headerContentType, contentTypeJSON)
	}

	return c.send(request, target)
}

func (c *HTTPClient) send(request *http.Request, target any) error {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf(errFmtSendRequest, c.baseURL, err)
	}

	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return parseErrorResponse(response)
	}

	decodeErr := json.NewDecoder(response.Body).Decode(target)
	if decodeErr != nil {
		return fmt.Errorf(errFmtDecodeResponse, decodeErr)
	}

	return nil
}

// StatusError carries the HTTP status of a failed call.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

// parseErrorResponse decodes the JSON error envelope, falling back to the
// raw body.
func parseErrorResponse(response *http.Response) error {
	body, _ := io.ReadAll(response.Body)

	var envelope api.ErrorResponse

	err := json.Unmarshal(body, &envelope)
	if err == nil && envelope.Error != "" {
		return &StatusError{
			StatusCode: response.StatusCode,
			Message:    fmt.Sprintf(errFmtServiceError, response.Status, envelope.Error),
		}
	}

	return &StatusError{
		StatusCode: response.StatusCode,
		Message:    fmt.Sprintf(errFmtServiceNonOKStatus, response.Status, string(body)),
	}
}
