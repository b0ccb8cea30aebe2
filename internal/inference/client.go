// Package inference turns captured screen content into a suggested ledger
// row by asking an OpenAI-compatible chat-completions endpoint.
package inference

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonschema"
	"github.com/shopspring/decimal"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/ledger"
)

//go:embed expense.schema.json
var expenseSchema []byte

const (
	DefaultApp      = "Unknown"
	DefaultCurrency = "CNY"

	maxErrorBody = 1200

	systemPrompt = "You are an accounting extractor. From a mobile payment success screen, " +
		"extract ONE expense record. Output ONLY valid JSON, no markdown."
	fieldsPrompt = "Extract JSON with keys: time_local, app (WeChat|Alipay|Bank|Unknown), " +
		"amount (negative for expense), currency (CNY), merchant, note, confidence (0-1), raw."
)

var codeFence = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

// Expense is the record the model extracted. Absent fields are nil.
type Expense struct {
	TimeLocal  *string             `json:"time_local"`
	App        *string             `json:"app"`
	Amount     decimal.Decimal     `json:"amount"`
	Currency   *string             `json:"currency"`
	Merchant   *string             `json:"merchant"`
	Note       *string             `json:"note"`
	Confidence decimal.NullDecimal `json:"confidence"`
	Raw        *string             `json:"raw"`
}

// Row builds a ledger row suggestion, filling defaults for missing fields.
func (e *Expense) Row(now time.Time) ledger.Row {
	ts := deref(e.TimeLocal)
	if ts == "" {
		ts = now.Format("2006-01-02 15:04")
	}
	return ledger.Row{
		Time:       ledger.NormalizeTime(ts),
		App:        orDefault(deref(e.App), DefaultApp),
		Amount:     e.Amount,
		Currency:   orDefault(deref(e.Currency), DefaultCurrency),
		Merchant:   deref(e.Merchant),
		Note:       deref(e.Note),
		Confidence: e.Confidence,
		Raw:        deref(e.Raw),
	}
}

// Client calls the chat-completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	schema  *jsonschema.Schema
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a client from the inference settings in cfg.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(expenseSchema)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("compile expense schema: %w", err))
	}
	timeout := config.Millis(cfg.ModelTimeoutMillis)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: timeout},
		schema:  schema,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Available reports whether an endpoint and key are configured.
func (c *Client) Available() bool {
	return c.baseURL != "" && c.apiKey != "" && c.model != ""
}

// ParseText extracts an expense from screen text.
func (c *Client) ParseText(ctx context.Context, text string) (*Expense, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	user := fieldsPrompt + "\n\nScreen text:\n" + text
	return c.complete(ctx, user)
}

// ParseScreenshot extracts an expense from a PNG screenshot.
func (c *Client) ParseScreenshot(ctx context.Context, pngData []byte) (*Expense, error) {
	if len(pngData) == 0 {
		return nil, errors.NewInvalidRequest("screenshot is empty")
	}
	user := []map[string]any{
		{"type": "text", "text": fieldsPrompt},
		{"type": "image_url", "image_url": map[string]any{
			"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData),
		}},
	}
	return c.complete(ctx, user)
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, userContent any) (*Expense, error) {
	if !c.Available() {
		return nil, errors.NewModelUnavailable("inference endpoint not configured (set base_url, model and " + config.EnvAPIKey + ")")
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": 0,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userContent},
		},
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", "autoledger")

	c.log.Debug("inference request", "url", url, "model", c.model, "bytes", len(body))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewModelUnavailable(err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewModelUnavailable(err.Error())
	}
	c.log.Debug("inference response", "status", resp.StatusCode, "bytes", len(data))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(data)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody] + "…"
		}
		return nil, errors.NewModelUnavailable(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet))
	}

	var chat chatResponse
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, errors.NewModelResponseInvalid("response is not JSON: " + err.Error())
	}
	if len(chat.Choices) == 0 {
		return nil, errors.NewModelResponseInvalid("response has no choices")
	}
	return c.decodeExpense(chat.Choices[0].Message.Content)
}

// decodeExpense strips markdown fences, validates the object against the
// expense schema and decodes it.
func (c *Client) decodeExpense(content string) (*Expense, error) {
	obj := extractObject(content)
	if obj == "" {
		return nil, errors.NewModelResponseInvalid("no JSON object in model output")
	}
	result := c.schema.ValidateJSON([]byte(obj))
	if !result.IsValid() {
		return nil, errors.NewModelResponseInvalid(fmt.Sprintf("schema validation failed: %v", result.Errors))
	}
	var e Expense
	if err := json.Unmarshal([]byte(obj), &e); err != nil {
		return nil, errors.NewModelResponseInvalid(err.Error())
	}
	return &e, nil
}

func extractObject(content string) string {
	s := strings.TrimSpace(content)
	if m := codeFence.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
