package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
)

type submitQuestionRequest struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

func (s *Server) ListQueue(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), queuedomain.DefaultListLimit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.queueSvc.List(c.Request.Context(), voterKey(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) SubmitQuestion(c *gin.Context) {
	var req submitQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	options := make([]string, 0, len(req.Options))
	for _, option := range req.Options {
		options = append(options, strings.TrimSpace(option))
	}

	resp, err := s.queueSvc.Submit(c.Request.Context(), queuedomain.SubmitRequest{
		VoterKey: voterKey(c),
		Text:     strings.TrimSpace(req.Text),
		Options:  options,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) UpvoteQuestion(c *gin.Context) {
	resp, err := s.queueSvc.Upvote(c.Request.Context(), strings.TrimSpace(c.Param("id")), voterKey(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
