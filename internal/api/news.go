package api

import (
	"net/http"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/response"
	"harmonyclass-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// GetNews returns the latest music education news
// GET /api/news?keyword=xxx
func (h *Handlers) GetNews(c *gin.Context) {
	items, err := h.News.Search(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		if apperror.IsConfiguration(err) {
			response.ErrorJSON(c, http.StatusInternalServerError, "API keys not configured")
			return
		}
		logging.Errorf("News API error: %v", err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to fetch news")
		return
	}

	c.JSON(http.StatusOK, items)
}
