package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/api/option"
)

// Candidate is what the model extracted from one email.
type Candidate struct {
	CompanyName string `json:"company_name"`
	JobTitle    string `json:"job_title"`
	Status      string `json:"status"`
	// Suggested by the model. The scan prefers the Date header.
	DateApplied string `json:"date_applied"`
	Notes       string `json:"notes"`
}

// Extractor turns email text into a Candidate. A nil Candidate with a nil
// error means the email is not about a job application.
type Extractor interface {
	Extract(ctx context.Context, text string) (*Candidate, error)
}

// TextGenerator is the minimal LLM surface the extractor needs.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const emailExtractionPrompt = `
You are a Job Application Tracking Agent. Analyze the email below and extract job application details.

### GOAL:
Identify ANY job application related email (confirmations, updates, rejections, offers).
BE AGGRESSIVE. If it looks like a job application update, extract it.

### OUTPUT SCHEMA:
{
    "company_name": "Infer from subject or body (e.g. MongoDB, Salesforce)",
    "job_title": "Infer from subject or body. If unknown use Software Engineer or Candidate",
    "status": "One of APPLIED, INTERVIEWING, REJECTED, OFFER",
    "date_applied": "YYYY-MM-DD if mentioned, otherwise today's date",
    "notes": "Brief summary, e.g. Application received, Rejected"
}

### STATUS HEURISTICS:
- "Application Update", "Thank you for applying", "You have officially applied" -> APPLIED
- "not moving forward", "unfortunately", "not selected" -> REJECTED
- "Interview", "Schedule a time", "Chat" -> INTERVIEWING
- "Offer", "Congratulations" -> OFFER

### CONSTRAINT:
If the email is a job alert, newsletter or spam (e.g. "New match:", "Job opportunities at"), output exactly: null
Output valid JSON only. Do not wrap the output in markdown code blocks.

### EMAIL CONTENT:
%s
`

const candidateSchema = `{
  "type": ["object", "null"],
  "properties": {
    "company_name": {"type": ["string", "null"]},
    "job_title":    {"type": ["string", "null"]},
    "status":       {"type": ["string", "null"]},
    "date_applied": {"type": ["string", "null"]},
    "notes":        {"type": ["string", "null"]}
  }
}`

type LLMService struct {
	Generator TextGenerator
	schema    *gojsonschema.Schema
	log       *slog.Logger
}

func NewLLMService(gen TextGenerator, log *slog.Logger) (*LLMService, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(candidateSchema))
	if err != nil {
		return nil, fmt.Errorf("compile candidate schema: %w", err)
	}
	return &LLMService{Generator: gen, schema: schema, log: log}, nil
}

// Extract asks the model about one email.
func (s *LLMService) Extract(ctx context.Context, text string) (*Candidate, error) {
	raw, err := s.Generator.Generate(ctx, fmt.Sprintf(emailExtractionPrompt, text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	s.log.Debug("llm response", slog.Int("text_len", len(text)), slog.String("raw", raw))

	cand, err := s.parseCandidate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return cand, nil
}

func (s *LLMService) parseCandidate(raw string) (*Candidate, error) {
	text := cleanJSONBlock(raw)
	if text == "" || strings.EqualFold(text, "null") {
		return nil, nil
	}

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return nil, fmt.Errorf("model output is not JSON: %v", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("model output does not match schema: %s", strings.Join(msgs, "; "))
	}

	var cand Candidate
	if err := json.Unmarshal([]byte(text), &cand); err != nil {
		return nil, fmt.Errorf("decode model output: %v", err)
	}
	return &cand, nil
}

// cleanJSONBlock removes markdown code fences around model output.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// langchainGenerator talks to Gemini through langchaingo.
type langchainGenerator struct {
	Client llms.Model
}

// NewLangchainGenerator creates the default Gemini generator.
func NewLangchainGenerator(ctx context.Context, apiKey, model string) (TextGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is empty")
	}
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &langchainGenerator{Client: llm}, nil
}

func (g *langchainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g.Client, prompt, llms.WithTemperature(0.1))
}

// genaiGenerator talks to Gemini through the official SDK with JSON output
// mode switched on.
type genaiGenerator struct {
	client *genai.Client
	model  string
}

func NewGenAIGenerator(ctx context.Context, apiKey, model string) (TextGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &genaiGenerator{client: client, model: model}, nil
}

func (g *genaiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return textFromResponse(resp)
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	var parts []string
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// NewGenerator picks the generator for the configured provider.
func NewGenerator(ctx context.Context, provider, apiKey, model string) (TextGenerator, error) {
	switch provider {
	case "genai":
		return NewGenAIGenerator(ctx, apiKey, model)
	default:
		return NewLangchainGenerator(ctx, apiKey, model)
	}
}
