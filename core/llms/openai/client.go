package openai

import (
	"context"
	"net/http"

	"github.com/JayTiptown/Conduit-coding-test/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Chat-completions endpoints of providers speaking the OpenAI streaming
// protocol.
const (
	OpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	GroqURL       = "https://api.groq.com/openai/v1/chat/completions"
	OpenAIURL     = "https://api.openai.com/v1/chat/completions"

	DefaultModel = "meta-llama/llama-3.3-70b-instruct"
)

type Client struct {
	apiKey       string
	model        string
	url          string
	systemPrompt string
	httpClient   *http.Client
}

type ClientOption func(*Client)

func WithURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithDefaultSystemPrompt is used when a prompt does not set its own.
func WithDefaultSystemPrompt(prompt string) ClientOption {
	return func(c *Client) { c.systemPrompt = prompt }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		apiKey: apiKey,
		model:  DefaultModel,
		url:    OpenRouterURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) PromptWithStream(_ context.Context, prompt string, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.StreamingPromptOptions{Instructions: c.systemPrompt}
	for _, opt := range opts {
		opt(&options)
	}

	return &Stream{
		client:  c,
		options: options,
		prompt:  prompt,
	}
}
