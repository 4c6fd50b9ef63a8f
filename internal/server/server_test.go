package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/manifest"
	"example.com/dmepatch/internal/patcher"
	"example.com/dmepatch/internal/version"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.StorageDir == "" {
		opts.StorageDir = filepath.Join(t.TempDir(), "storage")
	}
	srv, err := NewServer(opts)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	ts := httptest.NewServer(NewRouter(srv))
	t.Cleanup(ts.Close)
	return ts
}

func testImage(t *testing.T, versionID, variant string) []byte {
	t.Helper()
	set, ok := catalog.Default().Lookup(versionID, variant)
	require.True(t, ok)
	img := make([]byte, 0x80000)
	copy(img[version.Offset:], versionID)
	for _, m := range set.Modifications {
		copy(img[m.Offset:], m.Original)
	}
	return img
}

func post(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCatalogEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/catalog")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sets []setView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sets))
	require.Len(t, sets, 5)
	assert.Equal(t, "ca430056", sets[1].Version)
	assert.Equal(t, "5WK90015", sets[1].Variant)
	assert.Equal(t, "DA 0B 40 20", sets[1].Modifications[0].Original)

	resp2 := post(t, ts.URL+"/catalog", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := post(t, ts.URL+"/status", testImage(t, "ca430037", ""))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "ca430037", st.Version)
	assert.Equal(t, patcher.StatusOriginal, st.State)
	assert.True(t, st.CanApply)
	assert.False(t, st.CanRevert)
	require.Len(t, st.Sites, 3)
	assert.Equal(t, "DTC", st.Sites[2].Name)
}

func TestDetectEndpointVariant(t *testing.T) {
	ts := newTestServer(t, Options{})
	img := testImage(t, "ca430056", "5WK90017")

	resp := post(t, ts.URL+"/detect?variant=5WK90017", img)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var det struct {
		Version    string   `json:"version"`
		Variant    string   `json:"variant"`
		Candidates []string `json:"candidates"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&det))
	assert.Equal(t, "5WK90017", det.Variant)
	assert.Equal(t, []string{"ca430056/5WK90015", "ca430056/5WK90017"}, det.Candidates)
}

func TestApplyEndpoint(t *testing.T) {
	audit := filepath.Join(t.TempDir(), "audit.jsonl")
	metrics := common.NewMetrics()
	ts := newTestServer(t, Options{AuditLog: audit, Metrics: metrics})
	img := testImage(t, "ca430066", "")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "dme.bin")
	require.NoError(t, err)
	_, err = fw.Write(img)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/apply", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "dme_patched.bin")
	assert.Equal(t, "ca430066", resp.Header.Get(HeaderVersion))

	var logs []string
	require.NoError(t, json.Unmarshal([]byte(resp.Header.Get(HeaderLog)), &logs))
	assert.Equal(t, []string{
		"  Applied Jump patch at offset 0x600D8",
		"  Applied Code patch at offset 0x53BF8",
		"  Applied DTC patch at offset 0x70A77",
	}, logs)

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Len(t, out, len(img))
	set, _ := catalog.Default().Lookup("ca430066", "")
	assert.Equal(t, patcher.StatusPatched, patcher.StateOf(out, set))
	assert.Equal(t, common.Sha256Hex(out), resp.Header.Get(HeaderSHA256))

	entries, err := common.ReadPatchLog(audit)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "dme.bin", entries[0].File)

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.Applied)

	// The stored output can be reverted by reference.
	id := resp.Header.Get(HeaderArtifact)
	require.NotEmpty(t, id)
	rev := post(t, ts.URL+"/revert?artifact="+id, nil)
	require.Equal(t, http.StatusOK, rev.StatusCode)
	back, err := io.ReadAll(rev.Body)
	require.NoError(t, err)
	assert.Equal(t, img, back)
	assert.Contains(t, rev.Header.Get("Content-Disposition"), "dme_patched_reverted.bin")

	// Manifest over the produced artifacts.
	payload, _ := json.Marshal(map[string][]string{"artifacts": {id, rev.Header.Get(HeaderReport)}})
	mresp, err := http.Post(ts.URL+"/manifest", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer mresp.Body.Close()
	require.Equal(t, http.StatusOK, mresp.StatusCode)
	var m manifest.Manifest
	require.NoError(t, json.NewDecoder(mresp.Body).Decode(&m))
	require.Len(t, m.Items, 2)
	assert.Equal(t, "dme_patched.bin", m.Items[0].Path)
	assert.Equal(t, "firmware", m.Items[0].Role)
	assert.Equal(t, "report", m.Items[1].Role)
}

func TestErrorStatusCodes(t *testing.T) {
	ts := newTestServer(t, Options{})

	patched := testImage(t, "ca430069", "")
	set, _ := catalog.Default().Lookup("ca430069", "")
	_, err := patcher.Apply(patched, set)
	require.NoError(t, err)

	unknown := make([]byte, 0x80000)
	copy(unknown[version.Offset:], "ca439999")
	garbage := make([]byte, 0x80000)
	copy(garbage[version.Offset:], "xx")

	tests := []struct {
		name   string
		path   string
		body   []byte
		status int
		kind   string
	}{
		{"too small", "/apply", make([]byte, 64), http.StatusBadRequest, "too_small"},
		{"empty body", "/status", nil, http.StatusBadRequest, "request"},
		{"already patched", "/apply", patched, http.StatusConflict, "mismatch"},
		{"unpatched revert", "/revert", testImage(t, "ca430037", ""), http.StatusConflict, "mismatch"},
		{"unsupported", "/detect", unknown, http.StatusUnprocessableEntity, "unsupported"},
		{"unrecognized", "/status", garbage, http.StatusUnprocessableEntity, "unsupported"},
		{"unknown artifact", "/apply?artifact=nope", nil, http.StatusNotFound, "request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+tt.path, tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			var er ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
			assert.Equal(t, tt.kind, er.Kind)
			assert.NotEmpty(t, er.Error)
		})
	}
}

func TestImageSizeLimit(t *testing.T) {
	ts := newTestServer(t, Options{MaxImageBytes: 1024})
	resp := post(t, ts.URL+"/status", make([]byte, 2048))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUploadAndDownload(t *testing.T) {
	ts := newTestServer(t, Options{})
	img := testImage(t, "ca430037", "")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "upload.bin")
	require.NoError(t, err)
	_, err = fw.Write(img)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var up struct {
		Files []ArtifactRef `json:"files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	require.Len(t, up.Files, 1)
	assert.Equal(t, "upload.bin", up.Files[0].Name)

	st := post(t, ts.URL+"/status?artifact="+up.Files[0].ID, nil)
	require.Equal(t, http.StatusOK, st.StatusCode)

	dl, err := http.Get(ts.URL + "/artifacts/" + up.Files[0].ID)
	require.NoError(t, err)
	defer dl.Body.Close()
	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	missing, err := http.Get(ts.URL + "/artifacts/missing")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	post(t, ts.URL+"/apply", make([]byte, 16))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var h struct {
		Status  string                 `json:"status"`
		Sets    int                    `json:"catalogSets"`
		Metrics common.MetricsSnapshot `json:"metrics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 5, h.Sets)
	assert.EqualValues(t, 1, h.Metrics.Failures)
}

func TestOptionsNormalize(t *testing.T) {
	o, err := Options{}.normalize()
	require.NoError(t, err)
	assert.EqualValues(t, DefaultMaxImageBytes, o.MaxImageBytes)
	assert.NotNil(t, o.Catalog)
	assert.NotNil(t, o.Metrics)

	_, err = Options{MaxImageBytes: -1}.normalize()
	assert.Error(t, err)

	o, err = Options{AuditLog: "audit.jsonl"}.normalize()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(o.AuditLog))
}
