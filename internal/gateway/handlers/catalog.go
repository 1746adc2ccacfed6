package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"runbox/internal/catalog"
)

// ManifestSource returns the manifest currently in use.
type ManifestSource interface {
	Current() *catalog.Manifest
}

// AdjacentResponse lists the neighbours of an exercise in course order.
type AdjacentResponse struct {
	Prev *catalog.Ref `json:"prev"`
	Next *catalog.Ref `json:"next"`
}

// CatalogHandler serves the whole manifest.
func CatalogHandler(src ManifestSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SendJSON(w, http.StatusOK, src.Current())
	}
}

// ModuleHandler serves one module.
func ModuleHandler(src ManifestSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod, err := src.Current().Module(mux.Vars(r)["module"])
		if err != nil {
			SendLookupError(w, err)
			return
		}
		SendJSON(w, http.StatusOK, mod)
	}
}

// AdjacentHandler serves the previous and next exercises.
func AdjacentHandler(src ManifestSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		prev, next, err := src.Current().Adjacent(vars["module"], vars["exercise"])
		if err != nil {
			SendLookupError(w, err)
			return
		}
		SendJSON(w, http.StatusOK, AdjacentResponse{Prev: prev, Next: next})
	}
}
