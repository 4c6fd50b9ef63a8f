package server

import (
	"net/http"

	"example.com/dmepatch/internal/session"
)

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/catalog", s.handleCatalog)
	mux.HandleFunc("/detect", s.handleDetect)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/diff", s.handleDiff)
	mux.HandleFunc("/apply", s.handleModify(session.ActionApply))
	mux.HandleFunc("/revert", s.handleModify(session.ActionRevert))
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/manifest", s.handleManifest)
	mux.HandleFunc("/artifacts/", s.handleArtifactDownload)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}
