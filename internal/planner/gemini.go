package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
)

// Gemini defaults.
const (
	DefaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultGeminiTemperature = 0.2
	DefaultGeminiTimeout     = 90 * time.Second
)

// maxErrorBody bounds how much of a failed response is kept in errors.
const maxErrorBody = 800

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("gemini response has no candidate text")

// GeminiConfig configures a GeminiPlanner.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration

	// Location is the zone the model is told to read times in.
	Location *time.Location

	// Now is the clock the prompt reports. Defaults to time.Now.
	Now func() time.Time

	// Client overrides the HTTP client, e.g. in tests.
	Client *http.Client
}

// GeminiPlanner asks a Gemini model for a plan through the
// generateContent endpoint in JSON response mode.
type GeminiPlanner struct {
	cfg    GeminiConfig
	client *http.Client
}

// NewGeminiPlanner validates cfg and fills in defaults.
func NewGeminiPlanner(cfg GeminiConfig) (*GeminiPlanner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini planner: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGeminiTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &GeminiPlanner{cfg: cfg, client: client}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Plan sends the record and memory snapshot to the model and returns the
// text of its first candidate.
func (g *GeminiPlanner) Plan(ctx context.Context, rec ir.Record, snap memory.Snapshot) ([]byte, error) {
	prompt, err := BuildPrompt(rec, snap, g.cfg.Now().In(g.cfg.Location), g.cfg.Location)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(generateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      g.cfg.Temperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}

	endpoint := strings.TrimRight(g.cfg.BaseURL, "/") + "/" + url.PathEscape(g.cfg.Model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gemini returned non-JSON (HTTP %d): %s", resp.StatusCode, truncate(raw))
	}
	if out.Error != nil {
		return nil, fmt.Errorf("gemini error %d %s: %s", out.Error.Code, out.Error.Status, out.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini HTTP %d: %s", resp.StatusCode, truncate(raw))
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}
	text := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return []byte(text), nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
