package activitypub

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"github.com/tobyv/warbler/domain"
)

const acceptActivityJSON = "application/activity+json, application/ld+json"

// Resolver fetches remote actor documents and caches their key material and
// inbox addresses. Entries expire after the cache TTL and are refreshed
// once on a key-id miss, which covers remote key rotation.
type Resolver struct {
	client *resty.Client

	mu    sync.RWMutex
	cache map[string]*domain.RemoteActor
	ttl   time.Duration
}

// actorDoc is the wire shape of a remote actor document. The publicKey
// field may be a single object or an array; both occur in the wild.
type actorDoc struct {
	ID                string          `json:"id"`
	PreferredUsername string          `json:"preferredUsername"`
	Inbox             string          `json:"inbox"`
	PublicKey         json.RawMessage `json:"publicKey"`
}

// NewResolver builds a Resolver with the given fetch timeout, User-Agent
// and cache TTL.
func NewResolver(timeout time.Duration, userAgent string, ttl time.Duration) *Resolver {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", acceptActivityJSON).
		SetHeader("User-Agent", userAgent)

	return &Resolver{
		client: client,
		cache:  make(map[string]*domain.RemoteActor),
		ttl:    ttl,
	}
}

// Actor returns the actor document for actorURI, from cache when fresh.
func (r *Resolver) Actor(actorURI string) (*domain.RemoteActor, error) {
	r.mu.RLock()
	cached, ok := r.cache[actorURI]
	r.mu.RUnlock()

	if ok && time.Since(cached.FetchedAt) < r.ttl {
		return cached, nil
	}

	return r.Refresh(actorURI)
}

// Refresh fetches the actor document, bypassing the cache, and stores the
// result.
func (r *Resolver) Refresh(actorURI string) (*domain.RemoteActor, error) {
	resp, err := r.client.R().Get(actorURI)
	if err != nil {
		return nil, fmt.Errorf("actor fetch failed for %s: %w", actorURI, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("actor fetch for %s returned status %d", actorURI, resp.StatusCode())
	}

	var doc actorDoc
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse actor document for %s: %w", actorURI, err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("actor document for %s has no id", actorURI)
	}

	actor := &domain.RemoteActor{
		ID:                doc.ID,
		PreferredUsername: doc.PreferredUsername,
		Inbox:             doc.Inbox,
		Keys:              parsePublicKeys(doc.PublicKey),
		FetchedAt:         time.Now(),
	}

	r.mu.Lock()
	r.cache[actorURI] = actor
	r.mu.Unlock()

	log.Debug("Fetched remote actor", "actor", actorURI, "keys", len(actor.Keys))
	return actor, nil
}

// PublicKey resolves a keyId (actor URI plus fragment) to the published RSA
// key with that exact id. A stale cache entry is refreshed once before the
// lookup fails, to handle rotated keys.
func (r *Resolver) PublicKey(keyId string) (*rsa.PublicKey, error) {
	actorURI, _, _ := strings.Cut(keyId, "#")

	actor, err := r.Actor(actorURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKey, err)
	}

	pemKey := actor.KeyPem(keyId)
	if pemKey == "" {
		actor, err = r.Refresh(actorURI)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownKey, err)
		}
		pemKey = actor.KeyPem(keyId)
	}
	if pemKey == "" {
		return nil, fmt.Errorf("%w: no key %s in actor document", ErrUnknownKey, keyId)
	}

	pubKey, err := ParsePublicKey(pemKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKey, err)
	}
	return pubKey, nil
}

// InboxFor returns the inbox URI for an actor, or "" when the actor
// document publishes none.
func (r *Resolver) InboxFor(actorURI string) (string, error) {
	actor, err := r.Actor(actorURI)
	if err != nil {
		return "", err
	}
	return actor.Inbox, nil
}

func parsePublicKeys(raw json.RawMessage) []domain.PublicKey {
	if len(raw) == 0 {
		return nil
	}

	var single domain.PublicKey
	if err := json.Unmarshal(raw, &single); err == nil && single.ID != "" {
		return []domain.PublicKey{single}
	}

	var many []domain.PublicKey
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}
