package gateway

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

	"github.com/google/uuid"
)

// Operation endpoint names, relative to <base>/functions/v1/.
const (
	OpTranscribe          = "transcribe-video"
	OpAnalyzeContext      = "analyze-video-context"
	OpAnalyzeEnhancements = "analyze-enhancements"
	OpGenerateStoryboard  = "generate-storyboard"
	OpGenerateImage       = "generate-image"
	OpGenerateSFX         = "generate-sfx"
	OpChat                = "chat"
)

const maxResponseBytes = 8 << 20

// HTTPClient calls the hosted operation endpoints.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	// streamClient has no overall timeout; chat streams are bounded by ctx.
	streamClient *http.Client
	logger       *slog.Logger
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       logger,
	}
}

type mediaPayload struct {
	VideoBase64 string  `json:"videoBase64,omitempty"`
	VideoURL    string  `json:"videoUrl,omitempty"`
	Transcript  string  `json:"transcript,omitempty"`
	FileName    string  `json:"fileName,omitempty"`
	MimeType    string  `json:"mimeType,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
}

func newMediaPayload(in MediaInput) mediaPayload {
	p := mediaPayload{
		VideoURL:   in.VideoURL,
		Transcript: in.Transcript,
		FileName:   in.FileName,
		MimeType:   in.MimeType,
		Duration:   in.Duration,
	}
	if len(in.VideoBytes) > 0 {
		p.VideoBase64 = base64.StdEncoding.EncodeToString(in.VideoBytes)
	}
	return p
}

func (c *HTTPClient) Transcribe(ctx context.Context, in MediaInput) (*Transcription, error) {
	var out Transcription
	if err := c.call(ctx, OpTranscribe, newMediaPayload(in), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) AnalyzeContext(ctx context.Context, in MediaInput) (*VideoContext, error) {
	var out VideoContext
	if err := c.call(ctx, OpAnalyzeContext, newMediaPayload(in), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) AnalyzeEnhancements(ctx context.Context, req EnhancementRequest) (*EnhancementAnalysis, error) {
	var out EnhancementAnalysis
	if err := c.call(ctx, OpAnalyzeEnhancements, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GenerateStoryboard(ctx context.Context, req StoryboardRequest) (*Storyboard, error) {
	var out Storyboard
	if err := c.call(ctx, OpGenerateStoryboard, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	var out ImageResult
	if err := c.call(ctx, OpGenerateImage, req, &out); err != nil {
		return nil, err
	}
	if out.ImageURL == "" {
		return nil, ErrNoImage
	}
	return &out, nil
}

func (c *HTTPClient) GenerateSFX(ctx context.Context, req SFXRequest) (*SFXResult, error) {
	req.Duration = ClampSFXDuration(req.Duration)
	var out SFXResult
	if err := c.call(ctx, OpGenerateSFX, req, &out); err != nil {
		return nil, err
	}
	if out.AudioURL == "" {
		return nil, fmt.Errorf("%s: %w: no audio url", OpGenerateSFX, ErrMalformedResponse)
	}
	return &out, nil
}

func (c *HTTPClient) ChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, OpChat, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Info("opening chat stream", "messages", len(req.Messages))

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: http request failed: %w", OpChat, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RemoteError{Op: OpChat, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return resp.Body, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, op string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	url := fmt.Sprintf("%s/functions/v1/%s", c.baseURL, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}
	return req, nil
}

// call posts payload to op and decodes a 2xx JSON body into out.
func (c *HTTPClient) call(ctx context.Context, op string, payload, out any) error {
	req, err := c.newRequest(ctx, op, payload)
	if err != nil {
		return err
	}

	start := time.Now()
	c.logger.Info("calling gateway operation", "op", op, "request_id", req.Header.Get("X-Request-Id"))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		remote := &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
		c.logger.Warn("gateway operation failed",
			"op", op,
			"status", resp.StatusCode,
			"category", string(remote.Category()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return remote
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("gateway returned malformed JSON", "op", op, "error", err)
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}

	c.logger.Info("gateway operation succeeded",
		"op", op,
		"duration_ms", time.Since(start).Milliseconds(),
		"body_bytes", len(respBody),
	)
	return nil
}

func truncateBody(b []byte) string {
	const limit = 4096
	if len(b) > limit {
		b = b[:limit]
	}
	return string(b)
}
