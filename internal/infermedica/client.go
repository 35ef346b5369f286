package infermedica

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client talks to the Infermedica v2 API. Every request carries the
// app-level credential headers. Calls are not retried; any non-2xx
// response or undecodable body is returned as an error to the caller.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewClient(baseURL, appID, appKey string, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("App-Id", appID).
		SetHeader("App-Key", appKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// Diagnose submits the accumulated evidence and returns the candidate
// conditions in the order the API ranked them.
func (c *Client) Diagnose(ctx context.Context, ev Evidence) ([]Condition, error) {
	if ev.Evidence == nil {
		ev.Evidence = []EvidenceItem{}
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(ev).
		Post("/diagnosis")
	if err != nil {
		return nil, fmt.Errorf("diagnosis request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("diagnosis returned %s: %s", resp.Status(), resp.String())
	}

	var out diagnoseResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode diagnosis response: %w", err)
	}

	c.logger.Debug("diagnosis call completed",
		zap.Int("evidence_count", len(ev.Evidence)),
		zap.Int("condition_count", len(out.Conditions)),
	)
	return out.Conditions, nil
}

// Explain asks which of the given evidence supports or conflicts with
// the target condition.
func (c *Client) Explain(ctx context.Context, ev Evidence, targetID string) (Explanation, error) {
	body := explainRequest{
		Sex:      ev.Sex,
		Age:      ev.Age,
		Target:   targetID,
		Evidence: ev.Evidence,
	}
	if body.Evidence == nil {
		body.Evidence = []EvidenceItem{}
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		Post("/explain")
	if err != nil {
		return Explanation{}, fmt.Errorf("explain request failed for %s: %w", targetID, err)
	}
	if resp.IsError() {
		return Explanation{}, fmt.Errorf("explain for %s returned %s: %s", targetID, resp.Status(), resp.String())
	}

	var out Explanation
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Explanation{}, fmt.Errorf("failed to decode explain response for %s: %w", targetID, err)
	}
	return out, nil
}

// ConditionInfo fetches the static metadata for one condition.
func (c *Client) ConditionInfo(ctx context.Context, conditionID string) (ConditionDetails, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get("/conditions/" + conditionID)
	if err != nil {
		return ConditionDetails{}, fmt.Errorf("condition info request failed for %s: %w", conditionID, err)
	}
	if resp.IsError() {
		return ConditionDetails{}, fmt.Errorf("condition info for %s returned %s: %s", conditionID, resp.Status(), resp.String())
	}

	var out ConditionDetails
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return ConditionDetails{}, fmt.Errorf("failed to decode condition info for %s: %w", conditionID, err)
	}
	return out, nil
}

// Parse runs the NLP endpoint over free-form symptom text and returns
// the raw mention payload for the caller to pass through.
func (c *Client) Parse(ctx context.Context, text string) (json.RawMessage, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(parseRequest{Text: text}).
		Post("/parse")
	if err != nil {
		return nil, fmt.Errorf("parse request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("parse returned %s: %s", resp.Status(), resp.String())
	}
	if !json.Valid(resp.Body()) {
		return nil, fmt.Errorf("parse returned a malformed body")
	}
	return json.RawMessage(resp.Body()), nil
}

// Symptoms downloads the full symptom catalog.
func (c *Client) Symptoms(ctx context.Context) ([]CatalogSymptom, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get("/symptoms")
	if err != nil {
		return nil, fmt.Errorf("symptoms request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("symptoms returned %s: %s", resp.Status(), resp.String())
	}

	var out []CatalogSymptom
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode symptoms list: %w", err)
	}

	c.logger.Info("downloaded symptom catalog", zap.Int("count", len(out)))
	return out, nil
}
