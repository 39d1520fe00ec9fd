package web

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tobyv/warbler/util"
)

// ActorDocument is the local actor's published profile, including the
// public key material remote servers verify our signatures against.
type ActorDocument struct {
	Context           []string       `json:"@context"`
	ID                string         `json:"id"`
	Type              string         `json:"type"`
	PreferredUsername string         `json:"preferredUsername"`
	Name              string         `json:"name,omitempty"`
	Summary           string         `json:"summary,omitempty"`
	Inbox             string         `json:"inbox"`
	Outbox            string         `json:"outbox"`
	Followers         string         `json:"followers"`
	URL               string         `json:"url"`
	PublicKey         ActorPublicKey `json:"publicKey"`
}

type ActorPublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// BuildActorDocument assembles the actor document from configuration and
// the local public key.
func BuildActorDocument(conf *util.AppConfig, publicKeyPem string) *ActorDocument {
	base := fmt.Sprintf("https://%s/activitypub", conf.Conf.Domain)
	actorURI := conf.ActorURI()

	displayName := conf.Conf.DisplayName
	if displayName == "" {
		displayName = conf.Conf.Username
	}

	return &ActorDocument{
		Context: []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		ID:                actorURI,
		Type:              "Person",
		PreferredUsername: conf.Conf.Username,
		Name:              displayName,
		Summary:           conf.Conf.Summary,
		Inbox:             base + "/inbox",
		Outbox:            base + "/outbox",
		Followers:         base + "/followers",
		URL:               fmt.Sprintf("https://%s", conf.Conf.Domain),
		PublicKey: ActorPublicKey{
			ID:           conf.KeyId(),
			Owner:        actorURI,
			PublicKeyPem: publicKeyPem,
		},
	}
}

// WriteActorDocument persists the actor document to the data directory so
// external tooling can read the served identity.
func WriteActorDocument(doc *ActorDocument, dataDir string) error {
	buf, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal actor document: %w", err)
	}

	path := filepath.Join(dataDir, "actor.json")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write actor document: %w", err)
	}
	return nil
}
