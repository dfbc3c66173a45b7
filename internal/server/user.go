package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetUserStats(c *gin.Context) {
	resp, err := s.userStatsSvc.Get(c.Request.Context(), voterKey(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}
