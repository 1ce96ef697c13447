package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourusername/jobradar-api/internal/model"
	"github.com/yourusername/jobradar-api/internal/review"
)

// ClaudeEvaluator runs the persona-panel job evaluation against the
// Anthropic Messages API. It implements review.Evaluator.
type ClaudeEvaluator struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewClaudeEvaluator(apiKey, baseURL, modelName string) *ClaudeEvaluator {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	return &ClaudeEvaluator{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// ── Anthropic API request/response types ──────────────

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// panelVerdict is the JSON contract the prompt asks the model to follow.
type panelVerdict struct {
	Recommend  bool                  `json:"recommend"`
	Confidence string                `json:"confidence"`
	Rationale  string                `json:"rationale"`
	Personas   []review.PersonaScore `json:"personas"`
	Tradeoffs  []string              `json:"tradeoffs"`
	Actions    []string              `json:"actions"`
	Sources    []string              `json:"sources"`
}

const evaluateSystemPrompt = `You are a panel of three career advisors evaluating a job posting for a candidate:
- "recruiter": judges role seniority, title fit, and how competitive the posting is
- "negotiator": judges compensation, benefits signals, and leverage
- "insider": judges company health, team signals, and red flags in the posting text

Each persona votes independently, then the panel issues one combined verdict.

Always respond with ONLY a JSON object (no markdown, no backticks, no explanation):
{
  "recommend": true,
  "confidence": "high, medium, or low",
  "rationale": "2-3 sentence combined panel verdict",
  "personas": [
    {"name": "recruiter", "recommend": true, "confidence": "high", "reason": "one sentence"},
    {"name": "negotiator", "recommend": true, "confidence": "medium", "reason": "one sentence"},
    {"name": "insider", "recommend": false, "confidence": "low", "reason": "one sentence"}
  ],
  "tradeoffs": ["notable compromise the candidate would accept"],
  "actions": ["concrete next step, e.g. what to emphasize in the application"],
  "sources": ["which part of the posting each conclusion rests on"]
}

Rules:
- Judge only what the posting states. Don't invent company facts.
- recommend is the panel majority; note dissent in the rationale.
- Keep every string concise. Empty arrays are fine when there is nothing to say.`

// Evaluate reviews one job posting and returns the panel verdict.
func (e *ClaudeEvaluator) Evaluate(ctx context.Context, job *model.JobRecord) (*review.Verdict, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key not configured")
	}

	reqBody := claudeRequest{
		Model:     e.model,
		MaxTokens: 2000,
		System:    evaluateSystemPrompt,
		Messages: []claudeMessage{
			{
				Role:    "user",
				Content: "Evaluate this job posting and return the JSON:\n\n" + formatJobForPrompt(job),
			},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return nil, fmt.Errorf("parsing Claude response: %w", err)
	}
	if len(claudeResp.Content) == 0 {
		return nil, fmt.Errorf("empty response from Claude")
	}

	text := stripCodeFences(claudeResp.Content[0].Text)

	var panel panelVerdict
	if err := json.Unmarshal([]byte(text), &panel); err != nil {
		return nil, fmt.Errorf("parsing panel verdict: %w (raw: %s)", err, text)
	}

	return &review.Verdict{
		Recommend:  panel.Recommend,
		Confidence: panel.Confidence,
		Rationale:  panel.Rationale,
		Personas:   panel.Personas,
		Tradeoffs:  panel.Tradeoffs,
		Actions:    panel.Actions,
		Sources:    panel.Sources,
		Raw:        body,
		Model:      e.model,
	}, nil
}

// formatJobForPrompt renders the fields the panel should see. The
// description is bounded so one oversized posting can't blow the token
// budget.
func formatJobForPrompt(job *model.JobRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	fmt.Fprintf(&b, "Company: %s\n", job.Company)
	fmt.Fprintf(&b, "Site: %s\n", job.Site)

	location := strings.TrimSpace(strings.Join(nonEmpty(job.LocationCity, job.LocationState, job.LocationCountry), ", "))
	if job.IsRemote {
		if location == "" {
			location = "Remote"
		} else {
			location += " (Remote)"
		}
	}
	if location != "" {
		fmt.Fprintf(&b, "Location: %s\n", location)
	}
	if job.JobType != "" {
		fmt.Fprintf(&b, "Type: %s\n", job.JobType)
	}
	if job.MinAmount != nil || job.MaxAmount != nil {
		fmt.Fprintf(&b, "Salary: %s\n", formatSalary(job))
	}
	if job.DatePosted != nil {
		fmt.Fprintf(&b, "Posted: %s\n", job.DatePosted.Format("2006-01-02"))
	}

	fmt.Fprintf(&b, "\nDescription:\n%s\n", truncateUTF8(job.Description, 8000))
	return b.String()
}

func formatSalary(job *model.JobRecord) string {
	currency := job.Currency
	if currency == "" {
		currency = "USD"
	}
	switch {
	case job.MinAmount != nil && job.MaxAmount != nil:
		return fmt.Sprintf("%.0f-%.0f %s %s", *job.MinAmount, *job.MaxAmount, currency, job.Interval)
	case job.MinAmount != nil:
		return fmt.Sprintf("from %.0f %s %s", *job.MinAmount, currency, job.Interval)
	default:
		return fmt.Sprintf("up to %.0f %s %s", *job.MaxAmount, currency, job.Interval)
	}
}

func nonEmpty(parts ...string) []string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// stripCodeFences removes a markdown fence the model sometimes wraps
// around the JSON despite the prompt.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx != -1 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
