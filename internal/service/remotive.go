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

// Source fetches postings from one job board and hands them over as raw
// jobs for ingestion.
type Source interface {
	Site() string
	// Enabled reports whether the source has the credentials it needs.
	Enabled() bool
	Fetch(ctx context.Context, sched model.SiteSchedule) ([]model.RawJob, error)
}

// RemotiveClient wraps the Remotive free remote jobs API.
// No API key required.
type RemotiveClient struct {
	client *http.Client
}

func NewRemotiveClient() *RemotiveClient {
	return &RemotiveClient{
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (c *RemotiveClient) Site() string  { return "remotive" }
func (c *RemotiveClient) Enabled() bool { return true }

// ── Remotive API response types ──────────────────────

type remotiveResponse struct {
	JobCount int           `json:"job-count"`
	Jobs     []remotiveJob `json:"jobs"`
}

type remotiveJob struct {
	ID                        int      `json:"id"`
	Title                     string   `json:"title"`
	CompanyName               string   `json:"company_name"`
	Category                  string   `json:"category"`
	Tags                      []string `json:"tags"`
	JobType                   string   `json:"job_type"`
	PublicationDate           string   `json:"publication_date"`
	CandidateRequiredLocation string   `json:"candidate_required_location"`
	Salary                    string   `json:"salary"`
	URL                       string   `json:"url"`
	Description               string   `json:"description"`
}

// Fetch runs one search per schedule term and flattens the results.
func (c *RemotiveClient) Fetch(ctx context.Context, sched model.SiteSchedule) ([]model.RawJob, error) {
	terms := sched.SearchTerms
	if len(terms) == 0 {
		terms = []string{""}
	}

	var raws []model.RawJob
	for _, term := range terms {
		jobs, err := c.search(ctx, term, 50)
		if err != nil {
			return raws, err
		}
		for i := range jobs {
			raws = append(raws, convertRemotiveJob(jobs[i]))
		}
	}
	return raws, nil
}

func (c *RemotiveClient) search(ctx context.Context, term string, limit int) ([]remotiveJob, error) {
	params := url.Values{}
	if term != "" {
		params.Set("search", term)
	}
	params.Set("limit", strconv.Itoa(limit))

	reqURL := "https://remotive.com/api/remote-jobs?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating remotive request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Remotive API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading remotive response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Remotive API returned %d: %s",
			resp.StatusCode, string(body[:min(len(body), 500)]))
	}

	var result remotiveResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing Remotive response: %w", err)
	}

	log.Info().
		Int("results", len(result.Jobs)).
		Str("search", term).
		Msg("Remotive search complete")

	return result.Jobs, nil
}

// ── Converter ────────────────────────────────────────

func convertRemotiveJob(rj remotiveJob) model.RawJob {
	jobType := "full-time"
	switch strings.ToLower(rj.JobType) {
	case "part_time":
		jobType = "part-time"
	case "contract", "freelance":
		jobType = "contract"
	case "internship":
		jobType = "internship"
	}

	var datePosted *time.Time
	if rj.PublicationDate != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, rj.PublicationDate); err == nil {
				datePosted = &t
				break
			}
		}
	}

	// Remotive is remote-only; the required-location field narrows the
	// candidate pool, not the workplace.
	country := strings.TrimSpace(rj.CandidateRequiredLocation)
	if strings.EqualFold(country, "Anywhere") || strings.EqualFold(country, "Worldwide") {
		country = ""
	}

	source, _ := json.Marshal(rj)

	return model.RawJob{
		Site:            "remotive",
		JobURL:          rj.URL,
		Title:           rj.Title,
		Company:         rj.CompanyName,
		LocationCountry: country,
		IsRemote:        true,
		Description:     truncateUTF8(stripHTML(rj.Description), 5000),
		JobType:         jobType,
		DatePosted:      datePosted,
		SourceRaw:       source,
	}
}
