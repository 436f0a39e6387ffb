package handlers

import (
	"net/http"

	"flashcard-backend/internal/catalog"
)

type CatalogHandler struct {
	catalog *catalog.Catalog
}

func NewCatalogHandler(cat *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: cat}
}

// ListExams returns the exam -> domains -> concentration areas tree.
func (h *CatalogHandler) ListExams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.All())
}

func Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Flashcard API"})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
