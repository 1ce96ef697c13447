package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/model"
)

// AdzunaClient wraps the Adzuna job search API.
// Requires app_id and app_key from developer.adzuna.com (free tier available).
type AdzunaClient struct {
	appID   string
	appKey  string
	country string // 2-letter country code, default "us"
	client  *http.Client
}

func NewAdzunaClient(appID, appKey, country string) *AdzunaClient {
	if country == "" {
		country = "us"
	}
	return &AdzunaClient{
		appID:   appID,
		appKey:  appKey,
		country: country,
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (c *AdzunaClient) Site() string { return "adzuna" }

// Enabled returns true if Adzuna API keys are configured.
func (c *AdzunaClient) Enabled() bool {
	return c.appID != "" && c.appKey != ""
}

// ── Adzuna API response types ────────────────────────

type adzunaResponse struct {
	Results []adzunaJob `json:"results"`
	Count   int         `json:"count"`
}

type adzunaJob struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractType string         `json:"contract_type"`
	ContractTime string         `json:"contract_time"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string   `json:"display_name"`
	Area        []string `json:"area"`
}

// Fetch runs one search per schedule term.
func (c *AdzunaClient) Fetch(ctx context.Context, sched model.SiteSchedule) ([]model.RawJob, error) {
	if !c.Enabled() {
		return nil, nil
	}

	terms := sched.SearchTerms
	if len(terms) == 0 {
		terms = []string{""}
	}

	var raws []model.RawJob
	for _, term := range terms {
		jobs, err := c.search(ctx, term, sched.Location)
		if err != nil {
			return raws, err
		}
		for i := range jobs {
			raws = append(raws, convertAdzunaJob(jobs[i]))
		}
	}
	return raws, nil
}

func (c *AdzunaClient) search(ctx context.Context, keywords, where string) ([]adzunaJob, error) {
	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("app_key", c.appKey)
	params.Set("results_per_page", strconv.Itoa(50))
	params.Set("sort_by", "date")
	params.Set("content-type", "application/json")
	if keywords != "" {
		params.Set("what", keywords)
	}
	if where != "" {
		params.Set("where", where)
	}

	reqURL := fmt.Sprintf("https://api.adzuna.com/v1/api/jobs/%s/search/1?%s", c.country, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating adzuna request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Adzuna API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading adzuna response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Adzuna API returned %d: %s",
			resp.StatusCode, string(body[:min(len(body), 500)]))
	}

	var result adzunaResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing Adzuna response: %w", err)
	}

	log.Info().
		Int("results", len(result.Results)).
		Str("what", keywords).
		Str("where", where).
		Msg("Adzuna search complete")

	return result.Results, nil
}

// ── Converter ────────────────────────────────────────

func convertAdzunaJob(aj adzunaJob) model.RawJob {
	jobType := ""
	switch aj.ContractTime {
	case "full_time":
		jobType = "full-time"
	case "part_time":
		jobType = "part-time"
	}
	if aj.ContractType == "contract" {
		jobType = "contract"
	}

	var datePosted *time.Time
	if aj.Created != "" {
		if t, err := time.Parse(time.RFC3339, aj.Created); err == nil {
			datePosted = &t
		}
	}

	// Area is ordered country, state, city.
	var country, state, city string
	if len(aj.Location.Area) > 0 {
		country = aj.Location.Area[0]
	}
	if len(aj.Location.Area) > 1 {
		state = aj.Location.Area[1]
	}
	if len(aj.Location.Area) > 2 {
		city = aj.Location.Area[len(aj.Location.Area)-1]
	}

	var minAmount, maxAmount *float64
	if aj.SalaryMin > 0 {
		v := aj.SalaryMin
		minAmount = &v
	}
	if aj.SalaryMax > 0 {
		v := aj.SalaryMax
		maxAmount = &v
	}

	isRemote := strings.Contains(strings.ToLower(aj.Location.DisplayName), "remote") ||
		strings.Contains(strings.ToLower(aj.Title), "remote")

	source, _ := json.Marshal(aj)

	return model.RawJob{
		Site:            "adzuna",
		JobURL:          aj.RedirectURL,
		Title:           aj.Title,
		Company:         aj.Company.DisplayName,
		LocationCity:    city,
		LocationState:   state,
		LocationCountry: country,
		IsRemote:        isRemote,
		Description:     truncateUTF8(aj.Description, 5000),
		JobType:         jobType,
		MinAmount:       minAmount,
		MaxAmount:       maxAmount,
		Currency:        "USD",
		Interval:        "yearly",
		DatePosted:      datePosted,
		SourceRaw:       source,
	}
}
