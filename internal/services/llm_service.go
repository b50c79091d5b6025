package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// ErrLLMDisabled is returned when no model is configured.
var ErrLLMDisabled = errors.New("job extraction is not configured")

const maxAdLength = 20000

// JobDraft is the structured posting extracted from a pasted ad.
type JobDraft struct {
	Title          string   `json:"title"`
	CompanyName    string   `json:"company_name"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	EmploymentType string   `json:"employment_type"`
	PostalCode     string   `json:"postal_code"`
	City           string   `json:"city"`
	SalaryMin      *int     `json:"salary_min"`
	SalaryMax      *int     `json:"salary_max"`
	Requirements   []string `json:"requirements"`
}

type LLMService struct {
	Client llms.Model
}

// NewLLMService builds a Gemini client. An empty key yields a service whose
// calls return ErrLLMDisabled.
func NewLLMService(ctx context.Context, apiKey, model string) (*LLMService, error) {
	if apiKey == "" {
		return &LLMService{}, nil
	}
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &LLMService{Client: llm}, nil
}

const jobExtractionPrompt = `
You are a job ad extraction agent for a Swedish job board. Analyze the pasted
job advertisement and extract structured data.

### INSTRUCTIONS:
1. Ignore navigation menus, footers, cookie banners and lists of other jobs.
2. Keep the language of the ad (usually Swedish) in text fields.
3. "employment_type" is one of: heltid, deltid, timanstallning, vikariat, praktik, konsult.
4. "postal_code" is five digits without spaces, or null.
5. Salaries are monthly SEK integers, or null.
6. Output valid JSON only.

### OUTPUT SCHEMA:
{
    "title": "Job title",
    "company_name": "Employer name",
    "description": "Clean summary of responsibilities and requirements",
    "category": "Occupational field, e.g. Lager och logistik",
    "employment_type": "heltid",
    "postal_code": "11122",
    "city": "Stockholm",
    "salary_min": 28000,
    "salary_max": 32000,
    "requirements": ["B-körkort", "Truckkort"]
}

If a piece of information is missing set it to null. Do not guess.

### AD:
%s
`

// ExtractJobDetails turns a pasted job ad into a JobDraft.
func (s *LLMService) ExtractJobDetails(ctx context.Context, adText string) (*JobDraft, error) {
	if s.Client == nil {
		return nil, ErrLLMDisabled
	}
	adText = strings.TrimSpace(adText)
	if adText == "" {
		return nil, invalid("ad text is empty")
	}
	if len(adText) > maxAdLength {
		adText = adText[:maxAdLength]
	}

	resp, err := llms.GenerateFromSinglePrompt(ctx, s.Client, fmt.Sprintf(jobExtractionPrompt, adText),
		llms.WithTemperature(0), llms.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("extract job: %w", err)
	}
	var draft JobDraft
	if err := json.Unmarshal([]byte(stripCodeFence(resp)), &draft); err != nil {
		return nil, fmt.Errorf("decode extracted job: %w", err)
	}
	return &draft, nil
}

// stripCodeFence removes a markdown ``` fence the model may wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
