package metadata

import (
	"net/http"
	"time"

	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/value"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts metadata operations under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/metadata", handler.createOrUpdate)
	group.GET("/metadata/:fileID", handler.get)
}

type httpHandler struct {
	service *Service
}

type ownershipRequest struct {
	Owner   string         `json:"owner" binding:"required"`
	Group   string         `json:"group" binding:"required"`
	Details map[string]any `json:"details"`
}

type writeRequest struct {
	FileID                string           `json:"file_id" binding:"required"`
	Path                  string           `json:"path" binding:"required"`
	Checksum              string           `json:"checksum" binding:"required"`
	Ownership             ownershipRequest `json:"ownership" binding:"required"`
	VersionNumber         *int             `json:"version_number"`
	CreationTimestamp     *time.Time       `json:"creation_timestamp"`
	LastModifiedTimestamp *time.Time       `json:"last_modified_timestamp"`
	Details               string           `json:"details" binding:"max=1024"`
}

func (h *httpHandler) createOrUpdate(c *gin.Context) {
	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
		return
	}

	result, err := h.service.CreateOrUpdate(c.Request.Context(), Input{
		FileID:   req.FileID,
		Path:     req.Path,
		Checksum: value.Checksum(req.Checksum),
		Ownership: value.Ownership{
			Owner:   req.Ownership.Owner,
			Group:   req.Ownership.Group,
			Details: req.Ownership.Details,
		},
		VersionNumber:         req.VersionNumber,
		CreationTimestamp:     req.CreationTimestamp,
		LastModifiedTimestamp: req.LastModifiedTimestamp,
		Details:               req.Details,
	})
	if err != nil {
		c.JSON(errs.HTTPStatus(err), errs.Body(err))
		return
	}

	status := http.StatusOK
	if result.Status == StatusCreated {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (h *httpHandler) get(c *gin.Context) {
	meta, err := h.service.Get(c.Request.Context(), c.Param("fileID"))
	if err != nil {
		c.JSON(errs.HTTPStatus(err), errs.Body(err))
		return
	}
	c.JSON(http.StatusOK, meta)
}
