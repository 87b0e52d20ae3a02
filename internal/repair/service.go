// Package repair asks a chat model to fix broken LaTeX in OCR'd question text.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 30 * time.Second
	maxInputRunes  = 4000
)

var (
	ErrDisabled     = errors.New("latex repair is not configured")
	ErrInvalidInput = errors.New("invalid input")
)

const systemPrompt = `You fix LaTeX / Math Markdown syntax in OCR'd exam text.
Output ONLY the corrected text, with no explanation.
If nothing can be fixed, return the input exactly.
Keep every Hindi and English word unchanged; fix only LaTeX syntax.
Use \( ... \) for inline math.`

var (
	imageTokenRe = regexp.MustCompile(`(?i)\\includegraphics|!\[.*?\]\(|<img`)
	mathMarkupRe = regexp.MustCompile(`[\\${}^_]|(?i:theta|pi|circ|alpha|beta|gamma)`)
	fenceOpenRe  = regexp.MustCompile("(?i)^```[a-z]*\\n?")
	fenceCloseRe = regexp.MustCompile("\\n?```$")
)

type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type Service struct {
	gen     generator
	timeout time.Duration
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Result struct {
	Text    string `json:"text"`
	Changed bool   `json:"changed"`
	Skipped string `json:"skipped,omitempty"`
}

// NewService builds the repair service. An empty API key yields a disabled
// service rather than an error.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &Service{timeout: cfg.Timeout}, nil
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = DefaultModel
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return newWithGenerator(cm, cfg.Timeout), nil
}

func newWithGenerator(gen generator, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{gen: gen, timeout: timeout}
}

func (s *Service) Enabled() bool {
	return s != nil && s.gen != nil
}

// FixLatex returns text untouched when it embeds an image or carries no math
// markup. Otherwise the model reply replaces it, unless the reply is empty.
func (s *Service) FixLatex(ctx context.Context, text string) (*Result, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if len([]rune(text)) > maxInputRunes {
		return nil, fmt.Errorf("%w: text longer than %d characters", ErrInvalidInput, maxInputRunes)
	}
	if strings.TrimSpace(text) == "" {
		return &Result{Text: text, Skipped: "empty"}, nil
	}
	if imageTokenRe.MatchString(text) {
		return &Result{Text: text, Skipped: "image"}, nil
	}
	if !mathMarkupRe.MatchString(text) {
		return &Result{Text: text, Skipped: "no_math"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.gen.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: text},
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return &Result{Text: text}, nil
	}

	fixed := stripFences(resp.Content)
	if fixed == "" {
		log.Printf("latex repair returned empty reply, keeping input")
		return &Result{Text: text}, nil
	}
	return &Result{Text: fixed, Changed: fixed != text}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = fenceOpenRe.ReplaceAllString(s, "")
		s = fenceCloseRe.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
