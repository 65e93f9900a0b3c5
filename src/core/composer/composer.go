package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"coursematch/src/core/chunker"
	"coursematch/src/core/rag"
)

const (
	DefaultSentinel  = "No Program"
	DefaultSeparator = "\n\n"
)

var errEmptyOutput = errors.New("model returned no text")

// Kind tells whether the model found grounding for its answer.
type Kind string

const (
	Grounded Kind = "grounded"
	NoAnswer Kind = "no_answer"
)

// Answer is the model output. Text is never empty.
type Answer struct {
	Text    string   `json:"text"`
	Kind    Kind     `json:"kind"`
	Sources []string `json:"sources,omitempty"`
}

type Composer struct {
	model       llms.Model
	sentinel    string
	separator   string
	temperature float64
}

type Option func(c *Composer)

// WithSentinel sets the reply prefix that marks an ungrounded answer.
func WithSentinel(s string) Option {
	return func(c *Composer) {
		if strings.TrimSpace(s) != "" {
			c.sentinel = strings.TrimSpace(s)
		}
	}
}

// WithSeparator sets the string placed between retrieved chunks in the context.
func WithSeparator(s string) Option {
	return func(c *Composer) {
		c.separator = s
	}
}

func WithTemperature(t float64) Option {
	return func(c *Composer) {
		c.temperature = t
	}
}

func New(model llms.Model, opts ...Option) *Composer {
	c := &Composer{
		model:     model,
		sentinel:  DefaultSentinel,
		separator: DefaultSeparator,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose renders tmpl with the retrieved chunks and the query, invokes the model once and
// classifies the output. Model failures come back as *rag.ModelInvocationError.
func (c *Composer) Compose(ctx context.Context, query string, chunks []chunker.Chunk, tmpl Template) (Answer, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	prompt, err := tmpl.Render(strings.Join(texts, c.separator), query)
	if err != nil {
		return Answer{}, fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(c.temperature))
	if err != nil {
		return Answer{}, &rag.ModelInvocationError{Template: tmpl.Name(), Err: err}
	}
	if strings.TrimSpace(out) == "" {
		return Answer{}, &rag.ModelInvocationError{Template: tmpl.Name(), Err: errEmptyOutput}
	}

	return Answer{
		Text:    out,
		Kind:    c.Classify(out),
		Sources: sources(chunks),
	}, nil
}

// Classify reports NoAnswer when out begins with the sentinel, ignoring case and surrounding space.
func (c *Composer) Classify(out string) Kind {
	lead := strings.ToLower(strings.TrimSpace(out))
	if strings.HasPrefix(lead, strings.ToLower(c.sentinel)) {
		return NoAnswer
	}
	return Grounded
}

func sources(chunks []chunker.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	var out []string
	for _, ch := range chunks {
		if ch.SourceID == "" {
			continue
		}
		if _, ok := seen[ch.SourceID]; ok {
			continue
		}
		seen[ch.SourceID] = struct{}{}
		out = append(out, ch.SourceID)
	}
	return out
}
