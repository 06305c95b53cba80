package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notekeeper/internal/domain"
	"notekeeper/internal/service"
)

const maxImportBytes = 8 << 20

type exportResponse struct {
	Key          string     `json:"key"`
	Location     string     `json:"location,omitempty"`
	Size         int64      `json:"size"`
	NoteCount    int        `json:"note_count,omitempty"`
	URL          string     `json:"url,omitempty"`
	CreatedOn    *time.Time `json:"created_on,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

func exportToResponse(r domain.ExportRecord) exportResponse {
	resp := exportResponse{
		Key:          r.Key,
		Location:     r.Location,
		Size:         r.Size,
		NoteCount:    r.NoteCount,
		URL:          r.URL,
		LastModified: r.LastModified,
	}
	if !r.CreatedAt.IsZero() {
		created := r.CreatedAt
		resp.CreatedOn = &created
	}
	return resp
}

func (h *Handler) createExport(c *gin.Context) {
	record, err := h.archives.Export(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, exportToResponse(*record))
}

func (h *Handler) listExports(c *gin.Context) {
	records, err := h.archives.ListExports(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := make([]exportResponse, len(records))
	for i := range records {
		resp[i] = exportToResponse(records[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) purgeExports(c *gin.Context) {
	if err := h.archives.PurgeExports(c.Request.Context(), principalFrom(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) importNotes(c *gin.Context) {
	p := principalFrom(c)
	if p.Anonymous() {
		h.fail(c, service.ErrUnauthorized)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	var archive domain.Archive
	if err := c.ShouldBindJSON(&archive); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "archive too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": bindMessage(err)})
		return
	}

	result, err := h.archives.Import(c.Request.Context(), p, archive)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
