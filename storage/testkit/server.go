// Package testkit provides a fake storage server and a conformance suite
// for storage.Uploader implementations.
package testkit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"xdao.co/pwapub/cidutil"
	"xdao.co/pwapub/events"
	"xdao.co/pwapub/storage"
	"xdao.co/pwapub/storage/blossom"
)

// Server is an in-process Blossom server. It checks the upload
// authorization the way real servers do and serves stored blobs back at
// /<sha256>.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	reason   string
	digest   string
	blobs    map[string][]byte
	auths    []*nostr.Event
	attempts int
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{blobs: make(map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// Fail makes every upload answer status with reason in X-Reason.
func (s *Server) Fail(status int, reason string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.reason = status, reason
	return s
}

// ReportDigest makes the server lie about the stored digest.
func (s *Server) ReportDigest(d string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digest = d
	return s
}

// Attempts counts upload requests, including rejected ones.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Auths returns the accepted authorization events.
func (s *Server) Auths() []*nostr.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*nostr.Event(nil), s.auths...)
}

func (s *Server) Blob(sha256 string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[sha256]
	return b, ok
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/upload":
		s.upload(w, r)
	case r.Method == http.MethodGet:
		b, ok := s.Blob(strings.TrimPrefix(r.URL.Path, "/"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(b)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func reject(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("X-Reason", reason)
	w.WriteHeader(status)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.attempts++
	status, reason, digest := s.status, s.reason, s.digest
	s.mu.Unlock()

	if status != 0 {
		reject(w, status, reason)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		reject(w, http.StatusBadRequest, err.Error())
		return
	}
	auth, err := blossom.DecodeAuth(r.Header.Get("Authorization"))
	if err != nil {
		reject(w, http.StatusUnauthorized, "invalid authorization")
		return
	}
	if err := events.Verify(auth); err != nil {
		reject(w, http.StatusUnauthorized, "invalid authorization signature")
		return
	}
	sha := cidutil.SHA256Hex(body)
	switch {
	case auth.Kind != events.KindStorageAuth:
		reject(w, http.StatusUnauthorized, "authorization has wrong kind")
		return
	case events.TagValue(auth.Tags, "t") != "upload":
		reject(w, http.StatusUnauthorized, "authorization is not for upload")
		return
	case events.TagValue(auth.Tags, "x") != sha:
		reject(w, http.StatusUnauthorized, "authorization does not match blob hash")
		return
	}
	if exp, err := strconv.ParseInt(events.TagValue(auth.Tags, "expiration"), 10, 64); err != nil || exp < time.Now().Unix() {
		reject(w, http.StatusUnauthorized, "authorization expired")
		return
	}

	s.mu.Lock()
	s.blobs[sha] = body
	s.auths = append(s.auths, auth)
	s.mu.Unlock()

	if digest == "" {
		digest = sha
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(storage.Descriptor{
		URL:      s.URL + "/" + sha,
		SHA256:   digest,
		Size:     int64(len(body)),
		Type:     r.Header.Get("Content-Type"),
		Uploaded: time.Now().Unix(),
	})
}
