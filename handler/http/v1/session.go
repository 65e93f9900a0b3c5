package v1

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"coursematch/src/core/composer"
	"coursematch/src/core/session"
	"coursematch/src/log"
)

// Chat copy shown to the user.
const (
	GreetingMessage = "Enter the job description"
	NoAnswerMessage = "I could not find a program that can be linked to this job description."
	FollowUpMessage = "Click the button to display courses or enter another job description:"

	CourseAction      = "course_button"
	CourseActionLabel = "Show Courses"
)

type Action struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type Message struct {
	Text    string   `json:"text"`
	Actions []Action `json:"actions,omitempty"`
}

type SessionResponse struct {
	SessionID string           `json:"sessionId"`
	State     session.State    `json:"state"`
	Messages  []Message        `json:"messages"`
	Answer    *composer.Answer `json:"answer,omitempty"`
}

type postMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

type postActionRequest struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value"`
}

// CreateSession godoc
// @Summary Start a chat session
// @Tags chat
// @Produce json
// @Success 201 {object} SessionResponse
// @Router /sessions [post]
func (h *Handler) CreateSession(c *gin.Context) {
	s := h.sessions.Create()
	log.Debug("session created", "session", s.ID)
	sendJSON(c, http.StatusCreated, SessionResponse{
		SessionID: s.ID,
		State:     s.State(),
		Messages:  []Message{{Text: GreetingMessage}},
	})
}

// PostMessage godoc
// @Summary Look up programs for a job description
// @Tags chat
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body postMessageRequest true "Job description"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /sessions/{id}/messages [post]
func (h *Handler) PostMessage(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusNotFound, err)
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	answer, err := h.controller.OnJobDescription(c.Request.Context(), s, req.Text)
	h.observe(composer.TemplateProgram, answer, start, err)
	if err != nil {
		log.Error(err, "program lookup failed", "session", s.ID)
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	resp := SessionResponse{SessionID: s.ID, State: s.State(), Answer: &answer}
	if answer.Kind == composer.NoAnswer {
		resp.Messages = []Message{{Text: NoAnswerMessage}}
	} else {
		resp.Messages = []Message{
			{Text: answer.Text},
			{Text: FollowUpMessage, Actions: []Action{{Name: CourseAction, Label: CourseActionLabel, Value: answer.Text}}},
		}
	}
	sendJSON(c, http.StatusOK, resp)
}

// PostAction godoc
// @Summary Trigger a chat action, such as listing the courses of the suggested programs
// @Tags chat
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body postActionRequest true "Action"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /sessions/{id}/actions [post]
func (h *Handler) PostAction(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusNotFound, err)
		return
	}
	var req postActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}
	if req.Name != CourseAction {
		sendError(c, http.StatusBadRequest, fmt.Errorf("%w %q", errUnknownAction, req.Name))
		return
	}

	start := time.Now()
	answer, err := h.controller.OnCourseLookupAction(c.Request.Context(), s, req.Value)
	h.observe(composer.TemplateCourse, answer, start, err)
	if err != nil {
		log.Error(err, "course lookup failed", "session", s.ID)
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, SessionResponse{
		SessionID: s.ID,
		State:     s.State(),
		Messages:  []Message{{Text: answer.Text}},
		Answer:    &answer,
	})
}

func (h *Handler) observe(lookup string, answer composer.Answer, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.ObserveLookup(lookup, string(answer.Kind), start, err)
}
