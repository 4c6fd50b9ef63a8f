package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/manifest"
	"example.com/dmepatch/internal/patcher"
	"example.com/dmepatch/internal/report"
	"example.com/dmepatch/internal/session"
	"example.com/dmepatch/internal/version"
)

// Response headers set on apply and revert.
const (
	HeaderLog      = "X-Dmepatch-Log"
	HeaderVersion  = "X-Dmepatch-Version"
	HeaderSHA256   = "X-Dmepatch-Sha256"
	HeaderArtifact = "X-Dmepatch-Artifact"
	HeaderReport   = "X-Dmepatch-Report"
	HeaderAudit    = "X-Dmepatch-Audit-Error"
)

// Server coordinates HTTP handlers and keeps the images and reports produced
// by apply and revert requests for later download.
type Server struct {
	artifacts  *ArtifactStore
	workDir    string
	uploadsDir string
	catalog    *catalog.Catalog
	auditLog   *common.PatchLog
	maxImage   int64
	metrics    *common.Metrics
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "dmepatchd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	s := &Server{
		artifacts:  &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:    workDir,
		uploadsDir: uploadsDir,
		catalog:    opts.Catalog,
		maxImage:   opts.MaxImageBytes,
		metrics:    opts.Metrics,
	}
	if opts.AuditLog != "" {
		s.auditLog = common.NewPatchLog(opts.AuditLog)
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{
		ID:          randomID(),
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

// storeArtifact writes data into the workspace and registers it.
func (s *Server) storeArtifact(data []byte, displayName, kind string) (Artifact, error) {
	path := filepath.Join(s.workDir, randomID()+filepath.Ext(displayName))
	if err := common.WriteFileAtomic(path, data, 0o644); err != nil {
		return Artifact{}, err
	}
	return s.addArtifact(path, displayName, "", kind)
}

func (s *Server) options(r *http.Request, name string) session.Options {
	return session.Options{
		Catalog:  s.catalog,
		Variant:  strings.TrimSpace(r.URL.Query().Get("variant")),
		File:     name,
		AuditLog: s.auditLog,
		Metrics:  s.metrics,
	}
}

type modificationView struct {
	Name     string `json:"name"`
	Offset   int    `json:"offset"`
	Original string `json:"original"`
	Patched  string `json:"patched"`
}

type setView struct {
	Version       string             `json:"version"`
	Variant       string             `json:"variant,omitempty"`
	Modifications []modificationView `json:"modifications"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var out []setView
	s.catalog.Each(func(set catalog.ModificationSet) bool {
		v := setView{Version: set.VersionID, Variant: set.HardwareVariant}
		for _, m := range set.Modifications {
			v.Modifications = append(v.Modifications, modificationView{
				Name:     m.Name,
				Offset:   m.Offset,
				Original: patcher.HexString(m.Original),
				Patched:  patcher.HexString(m.Patched),
			})
		}
		out = append(out, v)
		return true
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) detect(w http.ResponseWriter, r *http.Request) ([]byte, *session.Detection, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, nil, false
	}
	data, name, err := s.readImage(w, r)
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}
	det, err := session.Detect(data, s.options(r, name))
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}
	return data, det, true
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	_, det, ok := s.detect(w, r)
	if !ok {
		return
	}
	candidates := make([]string, len(det.Candidates))
	for i, c := range det.Candidates {
		candidates[i] = c.Key().String()
	}
	writeJSON(w, http.StatusOK, struct {
		Identifier string   `json:"identifier"`
		Version    string   `json:"version"`
		Variant    string   `json:"variant,omitempty"`
		Candidates []string `json:"candidates"`
	}{det.Identifier, det.Set.VersionID, det.Set.HardwareVariant, candidates})
}

// StatusResponse is the body of a successful /status request.
type StatusResponse struct {
	Version   string                      `json:"version"`
	Variant   string                      `json:"variant,omitempty"`
	Roles     patcher.SetStatus           `json:"roles"`
	State     patcher.Status              `json:"state"`
	CanApply  bool                        `json:"canApply"`
	CanRevert bool                        `json:"canRevert"`
	Sites     []patcher.ModificationState `json:"sites"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	data, det, ok := s.detect(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Version:   det.Set.VersionID,
		Variant:   det.Set.HardwareVariant,
		Roles:     det.Status,
		State:     patcher.StateOf(data, det.Set),
		CanApply:  det.Status.CanApply(),
		CanRevert: det.Status.CanRevert(),
		Sites:     det.States,
	})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	data, det, ok := s.detect(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, patcher.Diff(data, det.Set))
}

func (s *Server) handleModify(action session.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		data, name, err := s.readImage(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := session.Run(data, action, s.options(r, name))
		if res == nil {
			common.Logf("%s %s failed: %v", action, name, err)
			writeError(w, err)
			return
		}
		if err != nil {
			common.Logf("%s %s: %v", action, name, err)
			w.Header().Set(HeaderAudit, err.Error())
		}
		outName := outputName(name, action)
		art, err := s.storeArtifact(data, outName, "firmware")
		if err != nil {
			http.Error(w, fmt.Sprintf("store output: %v", err), http.StatusInternalServerError)
			return
		}
		rep, err := s.storeReport(res, r.URL.Query().Get("report"))
		if err != nil {
			http.Error(w, fmt.Sprintf("write report: %v", err), http.StatusInternalServerError)
			return
		}
		common.Logf("%s %s -> %s version=%s sha256=%s", action, name, art.ID, res.Set.Key(), res.OutputSHA)

		logs, _ := json.Marshal(res.Logs)
		h := w.Header()
		h.Set(HeaderLog, string(logs))
		h.Set(HeaderVersion, res.Set.Key().String())
		h.Set(HeaderSHA256, res.OutputSHA)
		h.Set(HeaderArtifact, art.ID)
		h.Set(HeaderReport, rep.ID)
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", outName))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func (s *Server) storeReport(res *session.Result, format string) (Artifact, error) {
	path := filepath.Join(s.workDir, randomID())
	name := "session.json"
	var err error
	if strings.EqualFold(format, "pdf") {
		path += ".pdf"
		name = "session.pdf"
		err = report.SaveSessionPDF(res, path)
	} else {
		path += ".json"
		err = report.SaveSessionJSON(res, path)
	}
	if err != nil {
		return Artifact{}, err
	}
	return s.addArtifact(path, name, "", "report")
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Artifacts []string `json:"artifacts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Artifacts) == 0 {
		http.Error(w, "artifacts required", http.StatusBadRequest)
		return
	}
	entries := make([]manifest.Entry, 0, len(req.Artifacts))
	names := make([]string, 0, len(req.Artifacts))
	for _, id := range req.Artifacts {
		art, ok := s.getArtifact(id)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown artifact %s", id), http.StatusBadRequest)
			return
		}
		entries = append(entries, manifest.Entry{Path: art.Path, Role: art.Kind})
		names = append(names, art.Name)
	}
	m, err := manifest.Build(entries)
	if err != nil {
		http.Error(w, fmt.Sprintf("build manifest: %v", err), http.StatusInternalServerError)
		return
	}
	for i := range m.Items {
		m.Items[i].Path = names[i]
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status  string                 `json:"status"`
		Sets    int                    `json:"catalogSets"`
		Metrics common.MetricsSnapshot `json:"metrics"`
	}{"ok", s.catalog.Len(), s.metrics.Snapshot()})
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		writeJSON(w, http.StatusOK, s.listArtifacts())
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	disposition := fmt.Sprintf("attachment; filename=\"%s\"", art.Name)
	w.Header().Set("Content-Disposition", disposition)
	io.Copy(w, f)
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error to an HTTP status and a short kind label.
func statusFor(err error) (int, string) {
	var (
		tooSmall    *patcher.ImageTooSmallError
		mismatch    *patcher.ValidationMismatchError
		unsupported *version.UnsupportedVersionError
		reqErr      *requestError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, "request"
	case errors.Is(err, version.ErrFileTooSmall), errors.As(err, &tooSmall):
		return http.StatusBadRequest, "too_small"
	case errors.As(err, &mismatch):
		return http.StatusConflict, "mismatch"
	case errors.Is(err, version.ErrUnrecognizedVersion), errors.As(err, &unsupported):
		return http.StatusUnprocessableEntity, "unsupported"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func outputName(name string, action session.Action) string {
	if name == "" {
		name = "image.bin"
	}
	ext := filepath.Ext(name)
	suffix := "_patched"
	if action == session.ActionRevert {
		suffix = "_reverted"
	}
	return strings.TrimSuffix(name, ext) + suffix + ext
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
