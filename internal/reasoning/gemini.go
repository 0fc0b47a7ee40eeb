package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiCollaborator generates facility transmissions with the Gemini API.
type GeminiCollaborator struct {
	client *genai.Client
	model  string
}

// NewGeminiCollaborator creates a Gemini-backed collaborator.
func NewGeminiCollaborator(ctx context.Context, apiKey, model string) (*GeminiCollaborator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiCollaborator{client: client, model: model}, nil
}

// Generate builds the prompt, calls the model and validates the reply
// shape. A shape mismatch comes back wrapped in ErrMalformedResponse.
func (g *GeminiCollaborator) Generate(ctx context.Context, req Request) (Response, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Response{}, err
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return Response{}, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	return parseResponse([]byte(text))
}

// buildPrompt renders the context bundle into the generation prompt. The
// request itself is embedded as JSON so the model sees exactly what the
// orchestrator recorded.
func buildPrompt(req Request) (string, error) {
	bundle, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal context bundle: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are the air traffic control facility in a pilot radio training session.\n")
	switch req.Trigger {
	case TriggerPhaseEntry:
		b.WriteString("The pilot just entered a new flight phase; transmit first if the phase calls for it.\n")
	case TriggerPilotSpoke:
		b.WriteString("The pilot just transmitted; respond as the facility would.\n")
	}
	b.WriteString("Use standard FAA phraseology. Keep the transmission to one or two sentences.\n")
	b.WriteString("The situation fields are ground truth; do not contradict them.\n")
	b.WriteString("If the facility would stay silent here, return an empty message.\n\n")
	b.WriteString("Context:\n")
	b.Write(bundle)
	b.WriteString("\n\nReply with a JSON object: {\"message\": \"<transmission or empty>\", \"metadata\": {}}\n")
	return b.String(), nil
}
