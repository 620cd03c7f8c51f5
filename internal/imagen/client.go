package imagen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrRateLimited     = errors.New("image generation rate limited")
	ErrInvalidInput    = errors.New("image generation rejected input")
	ErrUpstreamFailure = errors.New("image generation upstream failure")
)

// IsRetryable reports whether another attempt at the same call may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure)
}

// Generator produces images for one theme. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]Asset, error)
	Download(ctx context.Context, url string) ([]byte, string, error)
}

type Style struct {
	Breed   string `json:"breed,omitempty"`
	PetName string `json:"pet_name,omitempty"`
	Details string `json:"details,omitempty"`
}

type GenerateRequest struct {
	Theme           string
	Trigger         string
	ReferenceImages []string
	SourcePhotoRef  string
	Count           int
	Style           Style
}

// Asset is one generated image as returned by the API. URL is short-lived.
type Asset struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

type generationRequest struct {
	Theme           string   `json:"theme"`
	Trigger         string   `json:"trigger"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	SourceImageURL  string   `json:"source_image_url"`
	NumOutputs      int      `json:"num_outputs"`
	Params          Style    `json:"params"`
}

type generationResponse struct {
	Images []Asset `json:"images"`
}

type Client struct {
	baseURL     string
	apiKey      string
	callTimeout time.Duration
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey string, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = 90 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		callTimeout: callTimeout,
		httpClient:  &http.Client{},
	}
}

// Generate asks the API for req.Count images. Each call is bounded by the
// client's call timeout on top of whatever deadline ctx carries.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) ([]Asset, error) {
	if req.Count < 1 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidInput)
	}
	if req.SourcePhotoRef == "" {
		return nil, fmt.Errorf("%w: source photo is required", ErrInvalidInput)
	}

	jsonData, err := json.Marshal(generationRequest{
		Theme:           req.Theme,
		Trigger:         req.Trigger,
		ReferenceImages: req.ReferenceImages,
		SourceImageURL:  req.SourcePhotoRef,
		NumOutputs:      req.Count,
		Params:          req.Style,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/generations", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", req.Theme, err)
	}

	var result generationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUpstreamFailure, err)
	}

	assets := make([]Asset, 0, len(result.Images))
	for _, img := range result.Images {
		if img.URL != "" {
			assets = append(assets, img)
		}
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: response contained no images", ErrUpstreamFailure)
	}
	return assets, nil
}

// Download fetches a generated asset and returns its bytes and content type.
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("failed to download asset: %w", classifyStatus(resp.StatusCode, body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", c.transportError(ctx, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// transportError keeps caller cancellation distinguishable from an upstream
// that timed out or dropped the connection.
func (c *Client) transportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("request aborted: %w", parent.Err())
	}
	return fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, status)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d, body: %s", ErrInvalidInput, status, string(body))
	default:
		return fmt.Errorf("%w: status %d, body: %s", ErrUpstreamFailure, status, string(body))
	}
}
