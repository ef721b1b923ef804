package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pnj.com/jewelry-designer/internal/core"
)

// multipart framing allowance on top of the image itself
const uploadOverhead = 1 << 20

func (h *APIHandler) UploadImageHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, core.MaxImageSize+uploadOverhead)
	if err := r.ParseMultipartForm(core.MaxImageSize + uploadOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, badRequest("file", fmt.Sprintf("file exceeds the %d MB limit", core.MaxImageSize/(1024*1024))))
			return
		}
		writeError(w, badRequest("file", "expected a multipart form with a file field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, badRequest("file", "file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, core.MaxImageSize+1))
	if err != nil {
		writeError(w, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	img, err := h.images.Upload(r.Context(), currentUser(r).ID, core.UploadRequest{
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		Data:           data,
		ConversationID: r.FormValue("conversation_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

func (h *APIHandler) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	img, err := h.images.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "imageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (h *APIHandler) ListImagesHandler(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", core.DefaultPageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.images.List(r.Context(), currentUser(r).ID, r.URL.Query().Get("conversation_id"), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) DeleteImageHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.images.Delete(r.Context(), currentUser(r).ID, chi.URLParam(r, "imageID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
