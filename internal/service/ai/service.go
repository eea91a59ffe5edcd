package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lingochat/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// maxReplyTokens caps generated output. The responder is a plain
// single-turn continuation, so a short cap keeps replies conversational.
const maxReplyTokens = 100

// Generator produces one reply for one utterance. Each call is
// independent: no conversation history is fed back into the model.
type Generator interface {
	GenerateReply(ctx context.Context, utterance string) (string, error)
}

type aiService struct {
	chatModel model.BaseChatModel
}

var (
	sharedOnce sync.Once
	sharedSvc  *aiService
	sharedErr  error
)

// Shared returns the process-wide generator, constructing the chat
// model on first use and holding it for the process lifetime. The
// model is stateless per call, so concurrent reads need no locking.
func Shared(cfg *config.Config) (Generator, error) {
	sharedOnce.Do(func() {
		sharedSvc, sharedErr = newAiService(cfg)
	})
	if sharedErr != nil {
		return nil, sharedErr
	}
	return sharedSvc, nil
}

func newAiService(cfg *config.Config) (*aiService, error) {
	provider, provCfg := cfg.ActiveProvider()
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("api key for provider %s is not configured", provider)
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	maxTokens := maxReplyTokens

	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL:   provCfg.BaseURL,
			Model:     provCfg.Model,
			APIKey:    provCfg.APIKey,
			MaxTokens: &maxTokens,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(context.Background(), &gemini.Config{
			Client:    client,
			Model:     provCfg.Model,
			MaxTokens: &maxTokens,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	return &aiService{chatModel: chatModel}, nil
}

// GenerateReply sends the single utterance to the model and returns
// the generated continuation. A failed or empty generation is an
// error; the caller never receives a substituted default reply.
func (s *aiService) GenerateReply(ctx context.Context, utterance string) (string, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return "", errors.New("utterance cannot be empty")
	}

	out, err := s.chatModel.Generate(ctx, []*schema.Message{
		schema.UserMessage(utterance),
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	reply := strings.TrimSpace(out.Content)
	if reply == "" {
		return "", errors.New("model returned an empty reply")
	}
	return reply, nil
}
