package openai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/acuvera/internal/analyzer"
	"github.com/joseph-ayodele/acuvera/internal/common"
)

var _ analyzer.Analyzer = (*Client)(nil)

// AnalyzeText implements analyzer.Analyzer using text-only chat/completions.
func (c *Client) AnalyzeText(ctx context.Context, text string) (analyzer.Payload, error) {
	rid := uuid.New().String()
	c.log.Info("analyzer.text.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(text),
	)
	user := analyzer.BuildTextPrompt(text) + "\n\nReturn ONLY JSON that matches the provided schema."
	return c.complete(ctx, rid, "text", user)
}

// AnalyzeImages sends rendered pages as image_url parts.
func (c *Client) AnalyzeImages(ctx context.Context, images []string) (analyzer.Payload, error) {
	rid := uuid.New().String()
	if len(images) == 0 {
		return analyzer.Payload{}, common.AnalyzerError("no images to analyze", nil)
	}
	c.log.Info("analyzer.vision.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"images", len(images),
	)
	parts := []map[string]any{
		{"type": "text", "text": analyzer.ImagePrompt + " Return ONLY JSON that matches the provided schema."},
	}
	for _, img := range images {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": img, "detail": "high"},
		})
	}
	return c.complete(ctx, rid, "vision", parts)
}

func (c *Client) complete(ctx context.Context, rid, mode string, userContent any) (analyzer.Payload, error) {
	start := time.Now()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": analyzer.BuildSystemPrompt()},
			{"role": "system", "content": analyzer.SchemaPrompt()},
			{"role": "user", "content": userContent},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, rid, endpoint, body)
	if err != nil {
		c.log.Error("analyzer."+mode+".http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return analyzer.Payload{}, common.AnalyzerError("openai request failed", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("analyzer."+mode+".decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
		)
		return analyzer.Payload{}, common.AnalyzerError("decode openai response", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("analyzer."+mode+".no_choices", "req_id", rid)
		return analyzer.Payload{}, common.AnalyzerError("no choices in openai response", nil)
	}
	content := []byte(stripFences(cc.Choices[0].Message.Content))

	// Validate strictly first.
	if err := analyzer.ValidatePayload(content); err != nil {
		if !c.cfg.LenientOptional {
			c.log.Error("analyzer."+mode+".schema_validation_failed", "req_id", rid, "error", err)
			return analyzer.Payload{}, common.AnalyzerError("schema validation failed", err)
		}
		cleaned, touched, sErr := analyzer.SanitizePayload(content)
		if sErr != nil {
			c.log.Error("analyzer."+mode+".sanitize_failed", "req_id", rid, "error", sErr)
			return analyzer.Payload{}, common.AnalyzerError("analyzer returned malformed content", sErr)
		}
		if vErr := analyzer.ValidatePayload(cleaned); vErr != nil {
			c.log.Error("analyzer."+mode+".schema_validation_failed", "req_id", rid, "error", vErr)
			return analyzer.Payload{}, common.AnalyzerError("schema validation failed", vErr)
		}
		c.log.Warn("analyzer."+mode+".lenient_sanitize_applied", "req_id", rid, "touched", touched)
		content = cleaned
	}

	out, err := analyzer.DecodePayload(content)
	if err != nil {
		return analyzer.Payload{}, err
	}
	c.log.Info("analyzer."+mode+".ok",
		"req_id", rid,
		"risk_score", out.Risk(),
		"line_items", len(out.LineItems),
		"issues", len(out.DetectedIssues),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// stripFences removes a ```json fence some models add despite json_object mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
