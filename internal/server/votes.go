package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	votedomain "github.com/smallbiznis/worldpulse/internal/vote/domain"
)

type submitVoteRequest struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

func (s *Server) SubmitVote(c *gin.Context) {
	var req submitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.voteSvc.Submit(c.Request.Context(), votedomain.SubmitRequest{
		QuestionID:  strings.TrimSpace(req.QuestionID),
		OptionID:    strings.TrimSpace(req.OptionID),
		VoterKey:    voterKey(c),
		CountryCode: voterCountry(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetVotes(c *gin.Context) {
	resp, err := s.voteSvc.Tally(c.Request.Context(), strings.TrimSpace(c.Param("questionId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=5")
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CheckVote(c *gin.Context) {
	resp, err := s.voteSvc.HasVoted(c.Request.Context(), strings.TrimSpace(c.Param("questionId")), voterKey(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}
