package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/intentbase-backend/internal/requestdata"
	"github.com/yungbote/intentbase-backend/internal/services"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/reconcile"
	"github.com/yungbote/intentbase-backend/internal/types"
)

type TaxonomyHandler struct {
	taxonomyService services.TaxonomyService
}

func NewTaxonomyHandler(taxonomyService services.TaxonomyService) *TaxonomyHandler {
	return &TaxonomyHandler{taxonomyService: taxonomyService}
}

func tenantFrom(c *gin.Context) (types.Tenant, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || !rd.Tenant.Valid() {
		RespondError(c, http.StatusUnauthorized, "missing_tenant", fmt.Errorf("tenant not resolved"))
		return types.Tenant{}, false
	}
	return rd.Tenant, true
}

type createNodeRequest struct {
	Name        string  `json:"name" binding:"required"`
	Parent      *string `json:"parent,omitempty"`
	Description string  `json:"description"`
}

func (th *TaxonomyHandler) CreateNode(c *gin.Context) {
	tenant, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req createNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	binding, err := th.taxonomyService.CreateNode(c.Request.Context(), tenant, req.Name, req.Parent, req.Description)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"binding": binding})
}

type renameNodeRequest struct {
	Name    string  `json:"name" binding:"required"`
	Parent  *string `json:"parent,omitempty"`
	NewName string  `json:"new_name" binding:"required"`
}

func (th *TaxonomyHandler) RenameNode(c *gin.Context) {
	tenant, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req renameNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := th.taxonomyService.RenameNode(c.Request.Context(), tenant, req.Name, req.Parent, req.NewName); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"renamed": req.NewName})
}

type deleteNodeRequest struct {
	Name   string  `json:"name" binding:"required"`
	Parent *string `json:"parent,omitempty"`
}

func (th *TaxonomyHandler) DeleteNode(c *gin.Context) {
	tenant, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req deleteNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := th.taxonomyService.DeleteNode(c.Request.Context(), tenant, req.Name, req.Parent); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": req.Name})
}

func (th *TaxonomyHandler) ListTaxonomy(c *gin.Context) {
	tenant, ok := tenantFrom(c)
	if !ok {
		return
	}
	intents, err := th.taxonomyService.ListTaxonomy(c.Request.Context(), tenant)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"intents": intents})
}

func (th *TaxonomyHandler) ReconcileSnapshot(c *gin.Context) {
	tenant, ok := tenantFrom(c)
	if !ok {
		return
	}
	var snap reconcile.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := th.taxonomyService.ReconcileSnapshot(c.Request.Context(), tenant, snap)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"result": res})
}
