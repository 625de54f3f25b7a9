package handler

import (
	"log/slog"
	"net/http"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// ArchiveHandler exposes the cold-storage archive listing for operators.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:  blobs,
		logger: logger,
	}
}

// ListArchives returns metadata for archived objects under a prefix.
// GET /api/archives?prefix=archive/challenges/
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}

	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}
