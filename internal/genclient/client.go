// Package genclient calls the Anthropic Messages API to turn stories and design artifacts into text.
// It fails closed: every failure is reported as an Unavailable result, never as an error.
package genclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"storyline/internal/metrics"
)

// maxResponseSize caps how much of a provider response is read.
const maxResponseSize = 1 << 20

const (
	DefaultBaseURL          = "https://api.anthropic.com"
	DefaultModel            = "claude-3-sonnet-20240229"
	DefaultMaxTokens        = 1000
	DefaultTimeout          = 15 * time.Second
	DefaultAnthropicVersion = "2023-06-01"
)

const specificationPrompt = `Convert the following user story to Gherkin format:

Title: %s

Description:
%s

Output the Gherkin specification only, without additional explanations.
`

const designPrompt = `Describe the user interface shown in this design as a requirements paragraph for a user story. ` +
	`Cover the navigation, the main content area, the interactive components and what the user can accomplish on the screen. ` +
	`Output the paragraph only, without additional explanations.`

type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxTokens        int
	Temperature      float64
	Timeout          time.Duration
	AnthropicVersion string
}

func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		Model:            DefaultModel,
		MaxTokens:        DefaultMaxTokens,
		Temperature:      0,
		Timeout:          DefaultTimeout,
		AnthropicVersion: DefaultAnthropicVersion,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.AnthropicVersion == "" {
		c.AnthropicVersion = d.AnthropicVersion
	}
	c.APIKey = strings.TrimSpace(c.APIKey)
	return c
}

// BlobSource resolves blob: design references to their bytes and media type.
type BlobSource interface {
	Get(ref string) ([]byte, string, error)
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	blobs      BlobSource
	metrics    *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithBlobs lets DescribeDesign inline locally stored artifacts as base64 image blocks.
func WithBlobs(b BlobSource) Option {
	return func(client *Client) {
		client.blobs = b
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(client *Client) {
		client.metrics = m
	}
}

func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// GenerateSpecification asks the provider for a Gherkin specification of the story.
func (c *Client) GenerateSpecification(ctx context.Context, title, description string) Result {
	if !c.Configured() {
		return c.unavailable(metrics.KindSpecification, "", reasonNoCredential)
	}
	msg := message{
		Role:    "user",
		Content: []contentBlock{textBlock(fmt.Sprintf(specificationPrompt, title, description))},
	}
	return c.complete(ctx, metrics.KindSpecification, msg)
}

// DescribeDesign asks a vision-capable model for a requirements paragraph describing designRef.
// designRef is either an http(s) URL or a blob: reference resolved through the configured BlobSource.
func (c *Client) DescribeDesign(ctx context.Context, designRef string) Result {
	if !c.Configured() {
		return c.unavailable(metrics.KindDesign, "", reasonNoCredential)
	}
	image, err := c.imageBlock(designRef)
	if err != nil {
		return c.unavailable(metrics.KindDesign, "", err.Error())
	}
	msg := message{
		Role:    "user",
		Content: []contentBlock{image, textBlock(designPrompt)},
	}
	return c.complete(ctx, metrics.KindDesign, msg)
}

func (c *Client) imageBlock(ref string) (contentBlock, error) {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return contentBlock{Type: "image", Source: &imageSource{Type: "url", URL: ref}}, nil
	case strings.HasPrefix(lower, "blob:"):
		if c.blobs == nil {
			return contentBlock{}, fmt.Errorf("no blob store for %s", ref)
		}
		data, mediaType, err := c.blobs.Get(ref)
		if err != nil {
			return contentBlock{}, fmt.Errorf("load design: %w", err)
		}
		return contentBlock{Type: "image", Source: &imageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
		}}, nil
	default:
		return contentBlock{}, fmt.Errorf("unsupported design reference %q", ref)
	}
}

func (c *Client) complete(ctx context.Context, kind string, msg message) Result {
	requestID := ulid.Make().String()
	started := time.Now()

	body, err := json.Marshal(request{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages:    []message{msg},
	})
	if err != nil {
		return c.unavailable(kind, requestID, "encode request: "+err.Error())
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return c.unavailable(kind, requestID, "build request: "+err.Error())
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", c.cfg.AnthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(kind, "unavailable", time.Since(started))
		return c.unavailable(kind, requestID, "transport: "+err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	elapsed := time.Since(started)
	if err != nil {
		c.metrics.ObserveRequest(kind, "unavailable", elapsed)
		return c.unavailable(kind, requestID, "read response: "+err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.ObserveRequest(kind, "unavailable", elapsed)
		return c.unavailable(kind, requestID, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	text, err := parseText(raw)
	if err != nil {
		c.metrics.ObserveRequest(kind, "unavailable", elapsed)
		return c.unavailable(kind, requestID, err.Error())
	}
	c.metrics.ObserveRequest(kind, "success", elapsed)
	c.logger.Debug("generation succeeded",
		"request_id", requestID,
		"kind", kind,
		"model", c.cfg.Model,
		"duration_ms", elapsed.Milliseconds(),
		"chars", len(text))
	return Success(text)
}

func (c *Client) endpoint() string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/v1/messages"
}

func (c *Client) unavailable(kind, requestID, reason string) Result {
	c.logger.Warn("generation unavailable",
		"request_id", requestID,
		"kind", kind,
		"reason", reason)
	return Unavailable(reason)
}

// parseText extracts content[0].text, which must be a non-empty text block.
func parseText(raw []byte) (string, error) {
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("malformed response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("response has no content")
	}
	text := stripCodeFence(strings.TrimSpace(resp.Content[0].Text))
	if text == "" {
		return "", fmt.Errorf("response content is empty")
	}
	return text, nil
}

// stripCodeFence unwraps a single ```lang ... ``` block, which models sometimes emit despite the prompt.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(inner[:nl], " \t") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
