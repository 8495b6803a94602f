// Package graphtest provides in-memory fakes of the Microsoft identity
// platform token endpoint and the Graph drive API for tests. The fakes record
// every request so tests can assert on the exact outbound call sequence.
package graphtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Operation names reported by Call.Op.
const (
	OpGetItem      = "get-item"
	OpCreateFolder = "create-folder"
	OpUpload       = "upload"
	OpCreateLink   = "create-link"
	OpUnknown      = "unknown"
)

// Call is one request received by the fake Graph server.
type Call struct {
	Op          string
	Method      string
	Path        string
	ContentType string
	Auth        string
	Body        []byte
}

// failure is an injected error response for one operation.
type failure struct {
	status int
	code   string
}

// Server is a fake Graph drive API backed by an in-memory folder table.
type Server struct {
	*httptest.Server

	DriveID string

	mu          sync.Mutex
	calls       []Call
	folders     map[string]string // name -> item id
	failures    map[string]failure
	omitLinkURL bool
	nextID      int
}

// NewServer starts a fake Graph server for driveID. It is closed
// automatically when the test ends.
func NewServer(t testing.TB, driveID string) *Server {
	t.Helper()

	s := &Server{
		DriveID:  driveID,
		folders:  make(map[string]string),
		failures: make(map[string]failure),
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)

	return s
}

// AddFolder marks a folder under the drive root as already existing.
func (s *Server) AddFolder(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.folders[name] = s.newIDLocked("folder")
}

// HasFolder reports whether a folder with exactly this name exists.
func (s *Server) HasFolder(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.folders[name]

	return ok
}

// Folders returns the names of every folder under the root.
func (s *Server) Folders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.folders))
	for name := range s.folders {
		names = append(names, name)
	}

	return names
}

// Fail makes every subsequent request for op answer with status and a Graph
// error body carrying code.
func (s *Server) Fail(op string, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[op] = failure{status: status, code: code}
}

// OmitLinkURL makes createLink answer without link.webUrl.
func (s *Server) OmitLinkURL() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.omitLinkURL = true
}

// Calls returns a copy of every request received so far, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Call, len(s.calls))
	copy(out, s.calls)

	return out
}

// Count returns how many requests for op were received.
func (s *Server) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}

	return n
}

// Ops returns the operation sequence received so far.
func (s *Server) Ops() []string {
	calls := s.Calls()

	ops := make([]string, 0, len(calls))
	for _, c := range calls {
		ops = append(ops, c.Op)
	}

	return ops
}

func (s *Server) newIDLocked(prefix string) string {
	s.nextID++

	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body) //nolint:errcheck // fake server, best effort

	// Any API version segment in front of /drives is accepted.
	_, rest, ok := strings.Cut(r.URL.Path, "/drives/"+s.DriveID+"/")

	op := OpUnknown
	if ok {
		op = classify(r.Method, rest)
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Op:          op,
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Auth:        r.Header.Get("Authorization"),
		Body:        body,
	})
	f, failing := s.failures[op]
	s.mu.Unlock()

	if failing {
		writeError(w, f.status, f.code)
		return
	}

	switch op {
	case OpGetItem:
		s.getItem(w, strings.TrimSuffix(strings.TrimPrefix(rest, "root:/"), ":"))
	case OpCreateFolder:
		s.createFolder(w, body)
	case OpUpload:
		s.upload(w, r, strings.TrimSuffix(strings.TrimPrefix(rest, "root:/"), ":/content"), body)
	case OpCreateLink:
		s.createLink(w, strings.TrimSuffix(strings.TrimPrefix(rest, "items/"), "/createLink"), body)
	default:
		writeError(w, http.StatusNotFound, "invalidRequest")
	}
}

func classify(method, rest string) string {
	switch {
	case method == http.MethodPut && strings.HasPrefix(rest, "root:/") && strings.HasSuffix(rest, ":/content"):
		return OpUpload
	case method == http.MethodGet && strings.HasPrefix(rest, "root:/"):
		return OpGetItem
	case method == http.MethodPost && rest == "items/root/children":
		return OpCreateFolder
	case method == http.MethodPost && strings.HasPrefix(rest, "items/") && strings.HasSuffix(rest, "/createLink"):
		return OpCreateLink
	default:
		return OpUnknown
	}
}

func (s *Server) getItem(w http.ResponseWriter, name string) {
	s.mu.Lock()
	id, ok := s.folders[name]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "itemNotFound")
		return
	}

	writeJSON(w, http.StatusOK, s.folderJSON(id, name))
}

func (s *Server) createFolder(w http.ResponseWriter, body []byte) {
	var req struct {
		Name             string `json:"name"`
		ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
	}

	if err := json.Unmarshal(body, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalidRequest")
		return
	}

	s.mu.Lock()
	name := req.Name

	if _, exists := s.folders[name]; exists {
		if req.ConflictBehavior != "rename" {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "nameAlreadyExists")

			return
		}

		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s %d", req.Name, i)
			if _, taken := s.folders[candidate]; !taken {
				name = candidate
				break
			}
		}
	}

	id := s.newIDLocked("folder")
	s.folders[name] = id
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, s.folderJSON(id, name))
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request, path string, body []byte) {
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}

	s.mu.Lock()
	id := s.newIDLocked("item")
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":                           id,
		"name":                         name,
		"size":                         len(body),
		"webUrl":                       "https://contoso.sharepoint.com/Documents/" + path,
		"createdDateTime":              "2024-05-01T10:00:00Z",
		"lastModifiedDateTime":         "2024-05-01T10:00:00Z",
		"parentReference":              map[string]string{"driveId": strings.ToUpper(s.DriveID)},
		"file":                         map[string]string{"mimeType": r.Header.Get("Content-Type")},
		"@microsoft.graph.downloadUrl": "https://download.example.com/" + id,
	})
}

func (s *Server) createLink(w http.ResponseWriter, itemID string, body []byte) {
	var req struct {
		Type  string `json:"type"`
		Scope string `json:"scope"`
	}

	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalidRequest")
		return
	}

	s.mu.Lock()
	omit := s.omitLinkURL
	s.mu.Unlock()

	link := map[string]string{"type": req.Type, "scope": req.Scope}
	if !omit {
		link["webUrl"] = "https://1drv.ms/u/s!" + itemID
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":   "perm-" + itemID,
		"link": link,
	})
}

func (s *Server) folderJSON(id, name string) map[string]any {
	return map[string]any{
		"id":                   id,
		"name":                 name,
		"webUrl":               "https://contoso.sharepoint.com/Documents/" + name,
		"createdDateTime":      "2024-01-01T00:00:00Z",
		"lastModifiedDateTime": "2024-01-01T00:00:00Z",
		"parentReference":      map[string]string{"id": "root", "driveId": s.DriveID},
		"folder":               map[string]int{"childCount": 0},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("request-id", "req-"+code)
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": "fake " + code},
	})
}

// TokenServer is a fake Azure AD v2 token endpoint.
type TokenServer struct {
	*httptest.Server

	requests atomic.Int32
	reject   atomic.Bool
	empty    atomic.Bool
	delay    atomic.Int64
}

// NewTokenServer starts a fake token endpoint. The n-th request is issued
// "test-access-token-<n>", valid for one hour. It is closed automatically when the test ends.
func NewTokenServer(t testing.TB) *TokenServer {
	t.Helper()

	ts := &TokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.Close)

	return ts
}

// TokenURL is the endpoint to configure as CredentialsConfig.TokenURL.
func (ts *TokenServer) TokenURL() string {
	return ts.URL + "/tenant/oauth2/v2.0/token"
}

// Requests returns how many token requests were received.
func (ts *TokenServer) Requests() int {
	return int(ts.requests.Load())
}

// Reject makes the endpoint answer 401 invalid_client.
func (ts *TokenServer) Reject() {
	ts.reject.Store(true)
}

// IssueEmpty makes the endpoint answer 200 without an access token.
func (ts *TokenServer) IssueEmpty() {
	ts.empty.Store(true)
}

// Delay slows every token response down by d.
func (ts *TokenServer) Delay(d time.Duration) {
	ts.delay.Store(int64(d))
}

func (ts *TokenServer) handle(w http.ResponseWriter, r *http.Request) {
	n := ts.requests.Add(1)

	if d := time.Duration(ts.delay.Load()); d > 0 {
		time.Sleep(d)
	}

	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "unsupported_grant_type",
			"error_description": "AADSTS70003: grant type not supported",
		})

		return
	}

	if ts.reject.Load() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_client",
			"error_description": "AADSTS7000215: Invalid client secret provided.",
		})

		return
	}

	if ts.empty.Load() {
		writeJSON(w, http.StatusOK, map[string]any{"token_type": "Bearer", "expires_in": 3600})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": fmt.Sprintf("test-access-token-%d", n),
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}
