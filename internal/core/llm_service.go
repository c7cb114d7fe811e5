package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one role-tagged entry of the prompt sent to the completion service.
type Turn struct {
	Role string
	Text string
}

type Completion struct {
	Text       string
	TokensUsed int
}

// Completer is the external text-completion service. The last turn is the
// message being answered and must have the user role.
type Completer interface {
	Complete(ctx context.Context, turns []Turn) (*Completion, error)
}

type LLMConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
}

type LLMService struct {
	client *genai.Client
	cfg    LLMConfig
}

func NewLLMService(ctx context.Context, cfg LLMConfig) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, cfg: cfg}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing GenAI client")
		} else {
			log.Info().Msg("GenAI client closed")
		}
	}
}

func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockMediumAndAbove})
	}
	return settings
}

func (s *LLMService) Complete(ctx context.Context, turns []Turn) (*Completion, error) {
	if len(turns) == 0 {
		return nil, &UpstreamError{Op: "request", Err: errors.New("prompt is empty")}
	}
	last := turns[len(turns)-1]
	if last.Role != RoleUser {
		return nil, &UpstreamError{Op: "request", Err: fmt.Errorf("last turn has role %q, want %q", last.Role, RoleUser)}
	}

	model := s.client.GenerativeModel(s.cfg.Model)
	model.SetTemperature(s.cfg.Temperature)
	model.SetMaxOutputTokens(int32(s.cfg.MaxOutputTokens))
	model.SafetySettings = safetySettings()

	chatSession := model.StartChat()
	chatSession.History = toContents(turns[:len(turns)-1])

	resp, err := chatSession.SendMessage(ctx, genai.Text(last.Text))
	if err != nil {
		return nil, &UpstreamError{Op: "generate", Err: err}
	}
	return completionFromResponse(resp)
}

func toContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, &genai.Content{
			Role:  t.Role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return contents
}

func completionFromResponse(resp *genai.GenerateContentResponse) (*Completion, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &UpstreamError{Op: "response", Err: errors.New("no candidate text in response")}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Debug().Str("type", fmt.Sprintf("%T", part)).Msg("Ignoring non-text response part")
		}
	}
	if responseText.Len() == 0 {
		return nil, &UpstreamError{Op: "response", Err: errors.New("response contained no text parts")}
	}

	completion := &Completion{Text: responseText.String()}
	if resp.UsageMetadata != nil {
		completion.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return completion, nil
}
