package openai

import (
	"time"

	"github.com/OFFIS-RIT/graphsync/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

const defaultTimeout = 5 * time.Minute

// GraphOpenAIClient implements ai.GraphAIClient against the OpenAI API or any
// server speaking its protocol. It manages separate clients for embeddings
// and chat completions.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	ai.MetricsRecorder

	embeddingModel  string
	chatModel       string
	extractionModel string
	dimensions      int

	chatURL string
	timeout time.Duration

	embeddingLock *semaphore.Weighted

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for creating
// a new GraphOpenAIClient.
//
// ChatModel is used for plain completions and summaries, ExtractionModel for
// schema-constrained extraction (it falls back to ChatModel).
// EmbeddingURL and EmbeddingKey configure the embedding API endpoint.
// ChatURL and ChatKey configure the chat/completion API endpoint.
// Dimensions pads or truncates every embedding to a fixed length.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel  string
	ChatModel       string
	ExtractionModel string
	Dimensions      int

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	Timeout                 time.Duration
	MaxConcurrentEmbeddings int64
}

// NewGraphOpenAIClient creates and returns a new GraphOpenAIClient configured with
// the provided parameters.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		ChatModel:      "gpt-4o-mini",
//		Dimensions:     1536,
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	extraction := params.ExtractionModel
	if extraction == "" {
		extraction = params.ChatModel
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxEmbed := params.MaxConcurrentEmbeddings
	if maxEmbed <= 0 {
		maxEmbed = 8
	}

	return &GraphOpenAIClient{
		embeddingModel:  params.EmbeddingModel,
		chatModel:       params.ChatModel,
		extractionModel: extraction,
		dimensions:      params.Dimensions,

		chatURL: params.ChatURL,
		timeout: timeout,

		embeddingLock: semaphore.NewWeighted(maxEmbed),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" && baseURL == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
