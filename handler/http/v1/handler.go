package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coursematch/src/core/rag"
	"coursematch/src/core/session"
	"coursematch/src/core/vectorindex"
	"coursematch/src/metrics"
)

type Handler struct {
	sessions   *session.Store
	controller *session.Controller
	holder     *vectorindex.Holder
	metrics    *metrics.Metrics
}

// NewHandler wires the chat endpoints. m may be nil, in which case /metrics is not served.
func NewHandler(sessions *session.Store, controller *session.Controller, holder *vectorindex.Holder, m *metrics.Metrics) *Handler {
	return &Handler{
		sessions:   sessions,
		controller: controller,
		holder:     holder,
		metrics:    m,
	}
}

// RegisterRoutes registers all v1 API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Chat routes
	v1.POST("/sessions", h.CreateSession)
	v1.POST("/sessions/:id/messages", h.PostMessage)
	v1.POST("/sessions/:id/actions", h.PostAction)

	// System routes
	v1.GET("/health", h.CheckHealth)

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

var errUnknownAction = errors.New("unknown action")

// sendError maps known errors to their status; status is used for anything else.
func sendError(c *gin.Context, status int, err error) {
	var code string
	var details interface{}
	var dimErr *rag.DimensionMismatchError
	switch {
	case errors.Is(err, session.ErrNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNoProgramSelected):
		code = "NO_PROGRAM_SELECTED"
		status = http.StatusConflict
	case errors.Is(err, session.ErrEmptyInput), errors.Is(err, errUnknownAction):
		code = "INVALID_REQUEST"
		status = http.StatusBadRequest
	case errors.Is(err, rag.ErrEmbedding):
		code = "EMBEDDING_FAILED"
		status = http.StatusBadGateway
	case errors.Is(err, rag.ErrModelInvocation):
		code = "MODEL_FAILED"
		status = http.StatusBadGateway
	case errors.Is(err, rag.ErrIndexNotFound):
		code = "INDEX_UNAVAILABLE"
		status = http.StatusServiceUnavailable
	case errors.As(err, &dimErr):
		code = "CONFIGURATION_ERROR"
		status = http.StatusInternalServerError
		details = gin.H{"indexDimension": dimErr.Want, "queryDimension": dimErr.Got}
	case errors.Is(err, rag.ErrConfiguration):
		code = "CONFIGURATION_ERROR"
		status = http.StatusInternalServerError
	case status == http.StatusBadRequest:
		code = "INVALID_REQUEST"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
		Details: details,
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
