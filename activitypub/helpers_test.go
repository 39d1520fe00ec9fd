package activitypub

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// testPeer simulates a remote server hosting a single actor: it serves the
// actor document and records deliveries to the actor's inbox.
type testPeer struct {
	t        *testing.T
	server   *httptest.Server
	key      *rsa.PrivateKey
	username string

	noInbox     bool
	inboxStatus int
	inboxDelay  time.Duration
	keyFragment string

	mu         sync.Mutex
	fetches    int
	deliveries []recordedDelivery
}

type recordedDelivery struct {
	method string
	path   string
	header http.Header
	body   []byte
}

func newTestPeer(t *testing.T, username string) *testPeer {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	p := &testPeer{
		t:           t,
		key:         key,
		username:    username,
		inboxStatus: http.StatusAccepted,
		keyFragment: "#main-key",
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

func (p *testPeer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/users/"+p.username:
		p.mu.Lock()
		p.fetches++
		p.mu.Unlock()

		doc := map[string]interface{}{
			"id":                p.actorURI(),
			"type":              "Person",
			"preferredUsername": p.username,
			"publicKey": map[string]string{
				"id":           p.actorURI() + p.keyFragment,
				"owner":        p.actorURI(),
				"publicKeyPem": publicKeyPEM(p.t, &p.key.PublicKey),
			},
		}
		if !p.noInbox {
			doc["inbox"] = p.inboxURI()
		}
		w.Header().Set("Content-Type", "application/activity+json")
		json.NewEncoder(w).Encode(doc)

	case r.Method == http.MethodPost && r.URL.Path == "/users/"+p.username+"/inbox":
		if p.inboxDelay > 0 {
			time.Sleep(p.inboxDelay)
		}
		body, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.deliveries = append(p.deliveries, recordedDelivery{
			method: r.Method,
			path:   r.URL.Path,
			header: r.Header.Clone(),
			body:   body,
		})
		p.mu.Unlock()
		w.WriteHeader(p.inboxStatus)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *testPeer) actorURI() string { return p.server.URL + "/users/" + p.username }
func (p *testPeer) inboxURI() string { return p.actorURI() + "/inbox" }
func (p *testPeer) keyId() string    { return p.actorURI() + p.keyFragment }

func (p *testPeer) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

func (p *testPeer) deliveryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deliveries)
}

func (p *testPeer) lastDelivery() recordedDelivery {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.deliveries) == 0 {
		p.t.Fatal("No deliveries recorded")
	}
	return p.deliveries[len(p.deliveries)-1]
}

func publicKeyPEM(t *testing.T, key *rsa.PublicKey) string {
	keyBytes, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: keyBytes}))
}

func privateKeyPEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

// newTestKeyStore builds a KeyStore for the given peer, so requests signed
// locally verify against the key the peer publishes.
func newTestKeyStore(t *testing.T, peer *testPeer) *KeyStore {
	keys, err := NewKeyStore(privateKeyPEM(peer.key), peer.actorURI(), peer.keyId())
	if err != nil {
		t.Fatalf("Failed to build key store: %v", err)
	}
	return keys
}

func newTestResolver() *Resolver {
	return NewResolver(5*time.Second, "warbler-test/1.0", time.Hour)
}

func followActivity(id, actor, object string) []byte {
	return []byte(fmt.Sprintf(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": %q,
		"type": "Follow",
		"actor": %q,
		"object": %q
	}`, id, actor, object))
}

func undoFollowActivity(id, actor, followId, object string) []byte {
	return []byte(fmt.Sprintf(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": %q,
		"type": "Undo",
		"actor": %q,
		"object": {
			"id": %q,
			"type": "Follow",
			"actor": %q,
			"object": %q
		}
	}`, id, actor, followId, actor, object))
}
