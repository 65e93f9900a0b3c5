package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"coursematch/src/core/vectorindex"
)

type HealthStatus struct {
	Status         string     `json:"status"`
	Entries        int        `json:"entries"`
	Dimension      int        `json:"dimension"`
	BuildID        string     `json:"buildId,omitempty"`
	EmbeddingModel string     `json:"embeddingModel,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	Sessions       int        `json:"sessions"`
}

// CheckHealth godoc
// @Summary Report the serving index
// @Tags system
// @Produce json
// @Success 200 {object} HealthStatus
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	idx, meta := h.holder.Snapshot()
	status := "ok"
	if idx.Len() == 0 {
		status = "empty"
	}
	sendJSON(c, http.StatusOK, HealthStatus{
		Status:         status,
		Entries:        idx.Len(),
		Dimension:      idx.Dimension(),
		BuildID:        meta.BuildID,
		EmbeddingModel: meta.EmbeddingModel,
		CreatedAt:      createdAt(meta),
		Sessions:       h.sessions.Len(),
	})
}

func createdAt(meta vectorindex.Meta) *time.Time {
	if meta.CreatedAt.IsZero() {
		return nil
	}
	t := meta.CreatedAt
	return &t
}
