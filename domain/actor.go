package domain

import "time"

// PublicKey is one published key of a remote actor.
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// RemoteActor is the cached view of a remote actor document: identity,
// inbox address and published key material. Immutable once fetched;
// refreshes replace the whole record.
type RemoteActor struct {
	ID                string
	PreferredUsername string
	Inbox             string
	Keys              []PublicKey
	FetchedAt         time.Time
}

// KeyPem returns the PEM material of the key with the given full id
// (including fragment), or "" if the actor publishes no such key.
func (a *RemoteActor) KeyPem(keyId string) string {
	for _, k := range a.Keys {
		if k.ID == keyId {
			return k.PublicKeyPem
		}
	}
	return ""
}
