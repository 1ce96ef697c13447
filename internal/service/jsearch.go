package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/model"
)

// JSearchClient wraps the JSearch API on RapidAPI. It aggregates boards
// like LinkedIn and Indeed behind one endpoint.
type JSearchClient struct {
	apiKey string
	client *http.Client
}

func NewJSearchClient(apiKey string) *JSearchClient {
	return &JSearchClient{
		apiKey: apiKey,
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (c *JSearchClient) Site() string { return "jsearch" }

func (c *JSearchClient) Enabled() bool {
	return c.apiKey != ""
}

// ── JSearch API response types ────────────────────────

type jsearchResponse struct {
	Status string       `json:"status"`
	Data   []jsearchJob `json:"data"`
}

type jsearchJob struct {
	JobID             string   `json:"job_id"`
	JobTitle          string   `json:"job_title"`
	EmployerName      string   `json:"employer_name"`
	JobCity           string   `json:"job_city"`
	JobState          string   `json:"job_state"`
	JobCountry        string   `json:"job_country"`
	JobIsRemote       bool     `json:"job_is_remote"`
	JobDescription    string   `json:"job_description"`
	JobEmploymentType string   `json:"job_employment_type"`
	JobApplyLink      string   `json:"job_apply_link"`
	JobMinSalary      *float64 `json:"job_min_salary"`
	JobMaxSalary      *float64 `json:"job_max_salary"`
	JobSalaryCurrency string   `json:"job_salary_currency"`
	JobSalaryPeriod   string   `json:"job_salary_period"`
	JobPostedAt       string   `json:"job_posted_at_datetime_utc"`
}

// Fetch runs one search per schedule term.
func (c *JSearchClient) Fetch(ctx context.Context, sched model.SiteSchedule) ([]model.RawJob, error) {
	if !c.Enabled() {
		return nil, nil
	}

	terms := sched.SearchTerms
	if len(terms) == 0 {
		terms = []string{"software engineer"}
	}

	var raws []model.RawJob
	for _, term := range terms {
		jobs, err := c.search(ctx, term, sched.Location)
		if err != nil {
			return raws, err
		}
		for i := range jobs {
			raws = append(raws, convertJSearchJob(jobs[i]))
		}
	}
	return raws, nil
}

func (c *JSearchClient) search(ctx context.Context, term, location string) ([]jsearchJob, error) {
	query := term
	if location != "" {
		query += " in " + location
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("page", "1")
	params.Set("num_pages", "1")
	params.Set("date_posted", "week")

	reqURL := "https://jsearch.p.rapidapi.com/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating jsearch request: %w", err)
	}

	req.Header.Set("x-rapidapi-host", "jsearch.p.rapidapi.com")
	req.Header.Set("x-rapidapi-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling JSearch API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading jsearch response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JSearch API returned %d: %s",
			resp.StatusCode, string(body[:min(len(body), 500)]))
	}

	var result jsearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing JSearch response: %w", err)
	}

	log.Info().
		Int("results", len(result.Data)).
		Str("query", query).
		Msg("JSearch search complete")

	return result.Data, nil
}

// ── Converter ────────────────────────────────────────

func convertJSearchJob(js jsearchJob) model.RawJob {
	jobType := strings.ToLower(strings.ReplaceAll(js.JobEmploymentType, "_", "-"))

	var datePosted *time.Time
	if js.JobPostedAt != "" {
		if t, err := time.Parse(time.RFC3339, js.JobPostedAt); err == nil {
			datePosted = &t
		}
	}

	interval := strings.ToLower(js.JobSalaryPeriod)
	switch interval {
	case "year":
		interval = "yearly"
	case "hour":
		interval = "hourly"
	case "month":
		interval = "monthly"
	}

	source, _ := json.Marshal(js)

	return model.RawJob{
		Site:            "jsearch",
		JobURL:          js.JobApplyLink,
		Title:           js.JobTitle,
		Company:         js.EmployerName,
		LocationCity:    js.JobCity,
		LocationState:   js.JobState,
		LocationCountry: js.JobCountry,
		IsRemote:        js.JobIsRemote,
		Description:     truncateUTF8(js.JobDescription, 5000),
		JobType:         jobType,
		MinAmount:       js.JobMinSalary,
		MaxAmount:       js.JobMaxSalary,
		Currency:        js.JobSalaryCurrency,
		Interval:        interval,
		DatePosted:      datePosted,
		SourceRaw:       source,
	}
}
