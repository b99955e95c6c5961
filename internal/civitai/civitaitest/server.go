// Package civitaitest provides an in-process fake of the CivitAI API for
// tests: metadata endpoints, the redirecting download endpoint and a content
// host with byte-range support.
package civitaitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"civitdl/pkg/types"
)

// Request is a recorded inbound request.
type Request struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	Range         string
}

// Server is a fake API. Exported fields may be changed between requests;
// they are read under the server lock.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	models   map[string]types.Model
	versions map[string]types.Version
	files    map[string][]byte
	byFileID map[string]string
	byVer    map[string]string
	requests []Request

	// Token, when set, is required on the download endpoint.
	Token string
	// DownloadStatus forces a status on the download endpoint instead of the
	// redirect; DownloadBody is sent with it.
	DownloadStatus int
	DownloadBody   string
	// UseDisposition carries the filename in a response-content-disposition
	// query parameter instead of the path.
	UseDisposition bool
	// RejectRanges answers any ranged content request with 416.
	RejectRanges bool
	// IgnoreRanges serves the full body with 200 even for ranged requests.
	IgnoreRanges bool
	// CutAfter aborts the content response after that many body bytes.
	CutAfter int
}

// New starts a fake server. Callers must Close it.
func New() *Server {
	s := &Server{
		models:   make(map[string]types.Model),
		versions: make(map[string]types.Version),
		files:    make(map[string][]byte),
		byFileID: make(map[string]string),
		byVer:    make(map[string]string),
	}
	r := chi.NewRouter()
	r.Use(s.record)
	r.Get("/api/v1/models", s.handleSearch)
	r.Get("/api/v1/models/{id}", s.handleModel)
	r.Get("/api/v1/model-versions/{id}", s.handleVersion)
	r.Get("/api/download/models/{id}", s.handleDownload)
	r.Get("/files/{name}", s.handleContent)
	r.Head("/files/{name}", s.handleContent)
	s.Server = httptest.NewServer(r)
	return s
}

// AddModel registers a model and its versions.
func (s *Server) AddModel(m types.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[strconv.FormatInt(m.ID, 10)] = m
	for _, v := range m.ModelVersions {
		v.ModelID = m.ID
		v.Model = &types.VersionModel{Name: m.Name, Type: m.Type}
		s.versions[strconv.FormatInt(v.ID, 10)] = v
	}
}

// AddFile registers content served for a version/file pair under name. The
// first file added for a version is its default download.
func (s *Server) AddFile(versionID, fileID int64, name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = content
	if fileID > 0 {
		s.byFileID[strconv.FormatInt(fileID, 10)] = name
	}
	v := strconv.FormatInt(versionID, 10)
	if _, ok := s.byVer[v]; !ok {
		s.byVer[v] = name
	}
}

// Requests returns a copy of the recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the recorded requests whose path starts with prefix.
func (s *Server) RequestsTo(prefix string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Set runs fn under the server lock to mutate behaviour flags safely.
func (s *Server) Set(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			RawQuery:      r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			Range:         r.Header.Get("Range"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m, ok := s.models[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No model with id " + chi.URLParam(r, "id")})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	v, ok := s.versions[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No model version with id " + chi.URLParam(r, "id")})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	token := s.Token
	var all []types.Model
	for _, m := range s.models {
		all = append(all, m)
	}
	s.mu.Unlock()

	q := strings.ToLower(r.URL.Query().Get("query"))
	if q == "" && token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var items []types.Model
	for _, m := range all {
		if q != "" && !strings.Contains(strings.ToLower(m.Name), q) {
			continue
		}
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	writeJSON(w, http.StatusOK, types.SearchResponse{Items: items, Metadata: types.SearchMetadata{TotalItems: len(items)}})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status, body, token, disp := s.DownloadStatus, s.DownloadBody, s.Token, s.UseDisposition
	name, ok := s.byFileID[r.URL.Query().Get("fileId")]
	if !ok {
		name, ok = s.byVer[chi.URLParam(r, "id")]
	}
	s.mu.Unlock()

	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return
	}
	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "The creator of this asset requires you to be logged in to download it"})
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	var loc string
	if disp {
		q := url.Values{}
		q.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", name))
		q.Set("X-Amz-Signature", "deadbeef")
		loc = s.URL + "/files/" + url.PathEscape(name) + "-blob?" + q.Encode()
	} else {
		loc = s.URL + "/files/" + url.PathEscape(name)
	}
	http.Redirect(w, r, loc, http.StatusTemporaryRedirect)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(chi.URLParam(r, "name"), "-blob")
	if n, err := url.PathUnescape(name); err == nil {
		name = n
	}
	s.mu.Lock()
	data, ok := s.files[name]
	reject, ignore, cut := s.RejectRanges, s.IgnoreRanges, s.CutAfter
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	// Pre-signed content URLs reject extra auth headers.
	if r.Header.Get("Authorization") != "" {
		http.Error(w, "only one auth mechanism allowed", http.StatusBadRequest)
		return
	}

	start := 0
	status := http.StatusOK
	if rh := r.Header.Get("Range"); rh != "" && !ignore {
		if reject {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		off, err := parseRange(rh)
		if err != nil || off >= len(data) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(data)))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		start = off
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", off, len(data)-1, len(data)))
	}
	body := data[start:]
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if cut > 0 && cut < len(body) {
		_, _ = w.Write(body[:cut])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	}
	_, _ = w.Write(body)
}

// parseRange accepts the open-ended "bytes=N-" form the engine sends.
func parseRange(h string) (int, error) {
	rng, ok := strings.CutPrefix(h, "bytes=")
	if !ok {
		return 0, fmt.Errorf("bad range %q", h)
	}
	startStr, _, _ := strings.Cut(rng, "-")
	return strconv.Atoi(startStr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
