package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/intentbase-backend/internal/services"
)

type PhraseHandler struct {
	taxonomyService services.TaxonomyService
}

func NewPhraseHandler(taxonomyService services.TaxonomyService) *PhraseHandler {
	return &PhraseHandler{taxonomyService: taxonomyService}
}

type upsertPhrasesRequest struct {
	Parent   *string  `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`
	Phrases  []string `json:"phrases" binding:"required"`
}

func (ph *PhraseHandler) UpsertPhrases(c *gin.Context) {
	tenant, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req upsertPhrasesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := ph.taxonomyService.UpsertPhrases(c.Request.Context(), tenant, req.Parent, req.Children, req.Phrases)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"inserted":   res.Inserted,
		"merged":     res.Merged,
		"duplicates": res.Duplicates,
	})
}

type editPhraseRequest struct {
	Parent   *string  `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`
}

func (ph *PhraseHandler) EditPhrase(c *gin.Context) {
	tenant, ok := tenantFrom(c)
	if !ok {
		return
	}
	phraseID := c.Param("id")
	var req editPhraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := ph.taxonomyService.EditPhrase(c.Request.Context(), tenant, phraseID, req.Parent, req.Children)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"merged": res.Merged})
}

func (ph *PhraseHandler) DeletePhrase(c *gin.Context) {
	tenant, ok := tenantFrom(c)
	if !ok {
		return
	}
	phraseID := c.Param("id")
	if err := ph.taxonomyService.DeletePhrase(c.Request.Context(), tenant, phraseID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": phraseID})
}
