package version

import (
	"net/http"

	"github.com/abduss/filemeta/internal/errs"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts version lookups under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/versions/:versionID", handler.getVersion)
	group.GET("/metadata/:fileID/versions", handler.history)
}

type httpHandler struct {
	service *Service
}

func (h *httpHandler) getVersion(c *gin.Context) {
	rec, err := h.service.GetVersion(c.Request.Context(), c.Param("versionID"))
	if err != nil {
		c.JSON(errs.HTTPStatus(err), errs.Body(err))
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *httpHandler) history(c *gin.Context) {
	records, err := h.service.GetHistory(c.Request.Context(), c.Param("fileID"))
	if err != nil {
		c.JSON(errs.HTTPStatus(err), errs.Body(err))
		return
	}
	if records == nil {
		records = []Record{}
	}
	c.JSON(http.StatusOK, gin.H{"file_id": c.Param("fileID"), "versions": records})
}
