package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tobyv/warbler/store"
)

func newTestServer(t *testing.T) (*Server, string) {
	gin.SetMode(gin.TestMode)

	dataDir := t.TempDir()
	conf := testConfig()

	followers, err := store.NewFollowerStore(filepath.Join(dataDir, "followers.json"))
	if err != nil {
		t.Fatalf("Failed to open follower store: %v", err)
	}

	actorDoc := BuildActorDocument(conf, "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----\n")
	return NewServer(conf, nil, followers, actorDoc, dataDir), dataDir
}

func get(s *Server, path, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	s.engine().ServeHTTP(rec, req)
	return rec
}

func TestActorEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(s, "/activitypub/actor", "application/activity+json")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var doc ActorDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse actor document: %v", err)
	}
	if doc.ID != "https://example.com/activitypub/actor" {
		t.Errorf("Unexpected actor id: %s", doc.ID)
	}
	if doc.PublicKey.PublicKeyPem == "" {
		t.Error("Expected key material in the served document")
	}
}

func TestActorEndpointContentNegotiation(t *testing.T) {
	s, _ := newTestServer(t)

	if rec := get(s, "/activitypub/actor", "text/html"); rec.Code != http.StatusNotAcceptable {
		t.Errorf("Expected status 406 for a browser Accept header, got %d", rec.Code)
	}
	if rec := get(s, "/activitypub/actor", "application/ld+json"); rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 for ld+json, got %d", rec.Code)
	}
}

func TestWebfingerEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(s, "/.well-known/webfinger?resource=acct:blog@example.com", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp WebfingerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse webfinger response: %v", err)
	}
	if resp.Subject != "acct:blog@example.com" {
		t.Errorf("Unexpected subject: %s", resp.Subject)
	}

	if rec := get(s, "/.well-known/webfinger?resource=acct:nobody@example.com", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown account, got %d", rec.Code)
	}
}

func TestFollowersEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	if _, err := s.followers.Add("https://remote.example/users/alice"); err != nil {
		t.Fatalf("Failed to add follower: %v", err)
	}

	rec := get(s, "/activitypub/followers", "application/activity+json")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var coll struct {
		Type         string   `json:"type"`
		TotalItems   int      `json:"totalItems"`
		OrderedItems []string `json:"orderedItems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &coll); err != nil {
		t.Fatalf("Failed to parse collection: %v", err)
	}
	if coll.Type != "OrderedCollection" {
		t.Errorf("Expected OrderedCollection, got %s", coll.Type)
	}
	if coll.TotalItems != 1 || len(coll.OrderedItems) != 1 {
		t.Errorf("Expected 1 follower, got %+v", coll)
	}
}

func TestServeDocumentById(t *testing.T) {
	s, dataDir := newTestServer(t)

	postsDir := filepath.Join(dataDir, "posts")
	if err := os.MkdirAll(postsDir, 0755); err != nil {
		t.Fatalf("Failed to create posts directory: %v", err)
	}
	post := []byte(`{"id":"https://example.com/activitypub/posts/hello","type":"Note","content":"hi"}`)
	if err := os.WriteFile(filepath.Join(postsDir, "hello.json"), post, 0644); err != nil {
		t.Fatalf("Failed to write post: %v", err)
	}

	rec := get(s, "/activitypub/posts/hello", "application/activity+json")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	if rec := get(s, "/activitypub/posts/missing", "application/activity+json"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for missing post, got %d", rec.Code)
	}
}

func TestDocumentIdPattern(t *testing.T) {
	valid := []string{"hello", "2026-08-01-first-post", "accept-b2c3", "note_1"}
	for _, id := range valid {
		if !documentIdPattern.MatchString(id) {
			t.Errorf("Expected id %q to be accepted", id)
		}
	}

	invalid := []string{"../../etc/passwd", "a/b", "a b", "", "id\x00"}
	for _, id := range invalid {
		if documentIdPattern.MatchString(id) {
			t.Errorf("Expected id %q to be rejected", id)
		}
	}
}

func TestFeedEndpoint(t *testing.T) {
	s, dataDir := newTestServer(t)

	outbox := []byte(`{"orderedItems":[{"id":"a","type":"Create","object":{"id":"p","type":"Note","name":"Post","content":"hi","published":"2026-08-01T12:00:00Z"}}]}`)
	if err := os.WriteFile(filepath.Join(dataDir, "outbox.json"), outbox, 0644); err != nil {
		t.Fatalf("Failed to write outbox: %v", err)
	}

	rec := get(s, "/feed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml; charset=utf-8" {
		t.Errorf("Unexpected content type: %s", ct)
	}
}
