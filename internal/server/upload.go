package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// requestError carries an HTTP status for problems with the request itself.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImage+1<<20)
	if err := r.ParseMultipartForm(s.maxImage); err != nil {
		http.Error(w, fmt.Sprintf("parse multipart: %v", err), http.StatusBadRequest)
		return
	}
	if r.MultipartForm == nil {
		http.Error(w, "no files provided", http.StatusBadRequest)
		return
	}
	var refs []ArtifactRef
	for _, files := range r.MultipartForm.File {
		for _, fh := range files {
			ref, err := s.saveUploadedFile(fh)
			if err != nil {
				http.Error(w, fmt.Sprintf("save upload %s: %v", fh.Filename, err), http.StatusBadRequest)
				return
			}
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}
	resp := struct {
		Files []ArtifactRef `json:"files"`
	}{Files: refs}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) saveUploadedFile(fh *multipart.FileHeader) (ArtifactRef, error) {
	if fh == nil {
		return ArtifactRef{}, fmt.Errorf("nil file header")
	}
	if fh.Size > s.maxImage {
		return ArtifactRef{}, fmt.Errorf("file exceeds %d bytes", s.maxImage)
	}
	src, err := fh.Open()
	if err != nil {
		return ArtifactRef{}, err
	}
	defer src.Close()
	ext := filepath.Ext(fh.Filename)
	pattern := "upload-*"
	if ext != "" {
		pattern = fmt.Sprintf("upload-*%s", ext)
	}
	dest, err := os.CreateTemp(s.uploadsDir, pattern)
	if err != nil {
		return ArtifactRef{}, err
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		os.Remove(dest.Name())
		return ArtifactRef{}, err
	}
	dest.Close()
	art, err := s.addArtifact(dest.Name(), filepath.Base(fh.Filename), "", "upload")
	if err != nil {
		return ArtifactRef{}, err
	}
	return toRef(art), nil
}

// readImage returns the firmware image of a request and a display name for it.
// The image is taken from a previously uploaded artifact (?artifact=id), from
// the "file" field of a multipart form, or from the raw body.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	if id := strings.TrimSpace(r.URL.Query().Get("artifact")); id != "" {
		art, ok := s.getArtifact(id)
		if !ok {
			return nil, "", &requestError{status: http.StatusNotFound, err: fmt.Errorf("unknown artifact %s", id)}
		}
		data, err := os.ReadFile(art.Path)
		if err != nil {
			return nil, "", fmt.Errorf("read artifact: %w", err)
		}
		return data, art.Name, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxImage+1<<20)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		src  io.Reader = r.Body
		name           = strings.TrimSpace(r.URL.Query().Get("name"))
	)
	if mediaType == "multipart/form-data" {
		f, fh, err := r.FormFile("file")
		if err != nil {
			return nil, "", badRequest("multipart field %q: %v", "file", err)
		}
		defer f.Close()
		src = f
		if name == "" {
			name = filepath.Base(fh.Filename)
		}
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(src, s.maxImage+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", &requestError{status: http.StatusRequestEntityTooLarge, err: err}
		}
		return nil, "", badRequest("read image: %v", err)
	}
	if n > s.maxImage {
		return nil, "", &requestError{status: http.StatusRequestEntityTooLarge, err: fmt.Errorf("image exceeds %d bytes", s.maxImage)}
	}
	if n == 0 {
		return nil, "", badRequest("image required")
	}
	if name == "" {
		name = "image.bin"
	}
	return buf.Bytes(), name, nil
}
