package conflict

import (
	"net/http"

	"github.com/abduss/filemeta/internal/errs"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts conflict operations under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/metadata/:fileID/conflict", handler.resolve)
	group.GET("/metadata/:fileID/conflicts", handler.listForFile)
	group.GET("/conflicts/:id", handler.get)
}

type httpHandler struct {
	service *Service
}

type resolveRequest struct {
	ConflictingVersionIDs []string `json:"conflicting_version_ids" binding:"required"`
	ResolutionStrategy    string   `json:"resolution_strategy" binding:"required"`
}

func (h *httpHandler) resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
		return
	}

	strategy, err := ParseStrategy(req.ResolutionStrategy)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), errs.Body(err))
		return
	}

	res, err := h.service.ResolveConflict(c.Request.Context(), c.Param("fileID"), req.ConflictingVersionIDs, strategy)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), errs.Body(err))
		return
	}

	if res.State == StateAwaitingManual {
		c.JSON(http.StatusAccepted, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *httpHandler) listForFile(c *gin.Context) {
	list, err := h.service.ListForFile(c.Request.Context(), c.Param("fileID"))
	if err != nil {
		c.JSON(errs.HTTPStatus(err), errs.Body(err))
		return
	}
	if list == nil {
		list = []Resolution{}
	}
	c.JSON(http.StatusOK, gin.H{"file_id": c.Param("fileID"), "resolutions": list})
}

func (h *httpHandler) get(c *gin.Context) {
	res, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(errs.HTTPStatus(err), errs.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
