package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var errEmptyResponse = errors.New("empty response from model")

// contentGenerator is the slice of the Gemini client the invoker relies on.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error)
	Close() error
}

type clientFactory func(ctx context.Context, apiKey string) (contentGenerator, error)

// GeminiInvoker calls Google AI Studio models through the generative-ai-go SDK.
// A client is opened per call with the caller's key; nothing is pooled.
type GeminiInvoker struct {
	timeout   time.Duration
	newClient clientFactory
}

// NewGeminiInvoker creates an invoker. A zero timeout leaves deadlines to the
// caller's context and the transport.
func NewGeminiInvoker(timeout time.Duration) *GeminiInvoker {
	return &GeminiInvoker{
		timeout:   timeout,
		newClient: newGenaiClient,
	}
}

func (g *GeminiInvoker) Generate(ctx context.Context, model, prompt, apiKey string) (res Result) {
	res = Result{Model: model}

	defer func() {
		if r := recover(); r != nil {
			res = Failure(model, fmt.Errorf("model call panicked: %v", r))
		}
	}()

	if apiKey == "" {
		return Failure(model, errors.New("API key required"))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	client, err := g.newClient(ctx, apiKey)
	if err != nil {
		return Failure(model, fmt.Errorf("failed to create client: %w", err))
	}
	defer client.Close()

	resp, err := client.GenerateContent(ctx, model, prompt)
	if err != nil {
		return Failure(model, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return Failure(model, err)
	}

	res.Output = text
	res.Success = true
	return res
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errEmptyResponse
	}

	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return "", errEmptyResponse
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	if sb.Len() == 0 {
		return "", errEmptyResponse
	}
	return sb.String(), nil
}

type genaiClient struct {
	client *genai.Client
}

func newGenaiClient(ctx context.Context, apiKey string) (contentGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &genaiClient{client: client}, nil
}

func (c *genaiClient) GenerateContent(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error) {
	return c.client.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
}

func (c *genaiClient) Close() error {
	return c.client.Close()
}
