package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notekeeper/internal/domain"
	"notekeeper/internal/service"
)

type noteRequest struct {
	Title   string `json:"note_title"`
	Content string `json:"note_content"`
}

// NoteResponse is the wire form of a note.
type NoteResponse struct {
	ID         string    `json:"id"`
	NoteID     string    `json:"note_id,omitempty"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"note_title"`
	Content    string    `json:"note_content"`
	CreatedOn  time.Time `json:"created_on"`
	LastUpdate time.Time `json:"last_update"`
}

func noteToResponse(n domain.Note) NoteResponse {
	return NoteResponse{
		ID:         n.ID,
		NoteID:     n.LegacyID,
		UserID:     n.OwnerID,
		Title:      n.Title,
		Content:    n.Body,
		CreatedOn:  n.CreatedAt,
		LastUpdate: n.LastUpdate,
	}
}

func (h *Handler) listNotes(c *gin.Context) {
	notes, err := h.notes.List(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := make([]NoteResponse, len(notes))
	for i := range notes {
		resp[i] = noteToResponse(notes[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getNote(c *gin.Context) {
	note, err := h.notes.Get(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, noteToResponse(*note))
}

func (h *Handler) createNote(c *gin.Context) {
	p := principalFrom(c)
	if p.Anonymous() {
		// authentication is reported ahead of body problems
		h.fail(c, service.ErrUnauthorized)
		return
	}
	var req noteRequest
	if !bindJSON(c, &req) {
		return
	}

	note, err := h.notes.Create(c.Request.Context(), p, req.Title, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, noteToResponse(*note))
}

func (h *Handler) updateNote(c *gin.Context) {
	p := principalFrom(c)
	if p.Anonymous() {
		h.fail(c, service.ErrUnauthorized)
		return
	}
	var req noteRequest
	if !bindJSON(c, &req) {
		return
	}

	note, err := h.notes.Update(c.Request.Context(), p, c.Param("id"), req.Title, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, noteToResponse(*note))
}

func (h *Handler) deleteNote(c *gin.Context) {
	if err := h.notes.Delete(c.Request.Context(), principalFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note deleted successfully"})
}
