package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeUserService serves GET {base}/user/{id} from an in-memory set of raw
// JSON user payloads, wrapped as {"result": payload}.
type FakeUserService struct {
	server *httptest.Server

	mu      sync.Mutex
	users   map[string]json.RawMessage
	calls   map[string]int
	status  int
	rawBody string
	handler http.HandlerFunc
}

// NewFakeUserService starts a fake user service. It is closed with the test.
func NewFakeUserService(t testing.TB) *FakeUserService {
	t.Helper()

	f := &FakeUserService{
		users: make(map[string]json.RawMessage),
		calls: make(map[string]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the service base address, to which /user/{id} is appended.
func (f *FakeUserService) URL() string { return f.server.URL + "/v1" }

// Put registers payload as the user with the given id.
func (f *FakeUserService) Put(id, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = json.RawMessage(payload)
}

// FailWith makes every following request answer with status.
func (f *FakeUserService) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// RespondRaw makes every following request answer 200 with body verbatim.
func (f *FakeUserService) RespondRaw(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawBody = body
}

// Intercept replaces request handling with h.
func (f *FakeUserService) Intercept(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// Calls returns how many requests asked for id.
func (f *FakeUserService) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// TotalCalls returns the number of user requests served.
func (f *FakeUserService) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *FakeUserService) serve(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutPrefix(r.URL.Path, "/v1/user/")
	if !ok || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	f.calls[id]++
	status, raw, handler := f.status, f.rawBody, f.handler
	payload, found := f.users[id]
	f.mu.Unlock()

	switch {
	case handler != nil:
		handler(w, r)
	case status != 0:
		writeJSON(w, status, map[string]any{"status": status, "error": http.StatusText(status)})
	case raw != "":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(raw))
	case !found:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"status":  http.StatusNotFound,
			"error":   "Not Found",
			"message": "user not found",
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"result": payload})
	}
}
