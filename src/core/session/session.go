package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"coursematch/src/core/chunker"
	"coursematch/src/core/composer"
)

// State is the position of a conversation.
type State string

const (
	AwaitingJobDescription  State = "awaiting_job_description"
	AwaitingCourseSelection State = "awaiting_course_selection"
)

var (
	// ErrNoProgramSelected is returned for a course lookup without a grounded program answer.
	ErrNoProgramSelected = errors.New("no program answer to look up courses for")
	// ErrEmptyInput is returned for blank job descriptions.
	ErrEmptyInput = errors.New("job description is empty")
)

// Retriever returns the chunks most similar to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]chunker.Chunk, error)
}

// Composer turns a query and its context into an answer.
type Composer interface {
	Compose(ctx context.Context, query string, chunks []chunker.Chunk, tmpl composer.Template) (composer.Answer, error)
}

// Session is one user's conversation. Turns on the same session are serialised.
type Session struct {
	ID string

	mu         sync.Mutex
	state      State
	lastAnswer string
}

func New(id string) *Session {
	return &Session{ID: id, state: AwaitingJobDescription}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastAnswer returns the grounded program answer awaiting a course lookup, if any.
func (s *Session) LastAnswer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAnswer
}

// Controller drives the program lookup then course lookup conversation. It keeps no index state;
// everything it needs is passed in.
type Controller struct {
	retriever Retriever
	composer  Composer
	program   composer.Template
	course    composer.Template
	k         int
}

// NewController wires the two lookups. k <= 0 lets the retriever pick its default.
func NewController(r Retriever, c Composer, program, course composer.Template, k int) *Controller {
	return &Controller{
		retriever: r,
		composer:  c,
		program:   program,
		course:    course,
		k:         k,
	}
}

// OnJobDescription answers a free-text job description with matching programs. It is accepted in
// every state and abandons any pending course selection.
func (c *Controller) OnJobDescription(ctx context.Context, s *Session, text string) (composer.Answer, error) {
	if strings.TrimSpace(text) == "" {
		return composer.Answer{}, ErrEmptyInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	answer, err := c.lookup(ctx, text, c.program)
	if err != nil {
		return composer.Answer{}, err
	}
	if answer.Kind == composer.Grounded {
		s.state = AwaitingCourseSelection
		s.lastAnswer = answer.Text
	} else {
		s.state = AwaitingJobDescription
		s.lastAnswer = ""
	}
	return answer, nil
}

// OnCourseLookupAction lists the courses for the programs in payload, which is normally the
// previous grounded answer. A blank payload falls back to that answer.
func (c *Controller) OnCourseLookupAction(ctx context.Context, s *Session, payload string) (composer.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AwaitingCourseSelection {
		return composer.Answer{}, ErrNoProgramSelected
	}
	if strings.TrimSpace(payload) == "" {
		payload = s.lastAnswer
	}

	answer, err := c.lookup(ctx, payload, c.course)
	if err != nil {
		return composer.Answer{}, err
	}
	s.state = AwaitingJobDescription
	s.lastAnswer = ""
	return answer, nil
}

func (c *Controller) lookup(ctx context.Context, query string, tmpl composer.Template) (composer.Answer, error) {
	chunks, err := c.retriever.Retrieve(ctx, query, c.k)
	if err != nil {
		return composer.Answer{}, fmt.Errorf("%s lookup: %w", tmpl.Name(), err)
	}
	answer, err := c.composer.Compose(ctx, query, chunks, tmpl)
	if err != nil {
		return composer.Answer{}, fmt.Errorf("%s lookup: %w", tmpl.Name(), err)
	}
	return answer, nil
}
