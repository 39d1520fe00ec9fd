package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

const ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"

var ErrNoObjectType = errors.New("activity object has no resolvable type")

// Activity is a generic ActivityPub activity. The object field is kept raw
// because its shape depends on the activity type: a bare URI string for
// Follow/Undo targets, an embedded document for Create/Update/Accept.
type Activity struct {
	Context   interface{}     `json:"@context,omitempty"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     string          `json:"actor"`
	Published string          `json:"published,omitempty"`
	To        []string        `json:"to,omitempty"`
	Cc        []string        `json:"cc,omitempty"`
	Object    json.RawMessage `json:"object,omitempty"`
}

// ObjectStub is the minimal shape of an embedded activity object, enough to
// classify wrapper activities and reference the wrapped document.
type ObjectStub struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Actor  string          `json:"actor,omitempty"`
	Object json.RawMessage `json:"object,omitempty"`
}

// ParseActivity decodes raw JSON into an Activity.
func ParseActivity(raw []byte) (*Activity, error) {
	var act Activity
	if err := json.Unmarshal(raw, &act); err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}
	return &act, nil
}

// ObjectURI returns the URI the object field points at: the string itself
// when the object is a bare URI, the embedded document's id otherwise.
func (a *Activity) ObjectURI() string {
	if len(a.Object) == 0 {
		return ""
	}
	var uri string
	if err := json.Unmarshal(a.Object, &uri); err == nil {
		return uri
	}
	var stub ObjectStub
	if err := json.Unmarshal(a.Object, &stub); err == nil {
		return stub.ID
	}
	return ""
}

// EmbeddedObject returns the object field as an embedded document, or an
// error if the object is absent or a bare URI.
func (a *Activity) EmbeddedObject() (*ObjectStub, error) {
	if len(a.Object) == 0 {
		return nil, ErrNoObjectType
	}
	var stub ObjectStub
	if err := json.Unmarshal(a.Object, &stub); err != nil {
		return nil, ErrNoObjectType
	}
	if stub.Type == "" {
		return nil, ErrNoObjectType
	}
	return &stub, nil
}

// DispatchKey returns the classification key for handler lookup: the bare
// activity type for most activities, "Undo.<objectType>" for Undo wrappers.
func (a *Activity) DispatchKey() (string, error) {
	if a.Type != "Undo" {
		return a.Type, nil
	}
	obj, err := a.EmbeddedObject()
	if err != nil {
		return "", fmt.Errorf("undo activity %s: %w", a.ID, err)
	}
	return a.Type + "." + obj.Type, nil
}

// NewAccept builds an Accept activity for the given Follow, attributed to
// the local actor. The original Follow is embedded as the object so the
// remote side can correlate the response.
func NewAccept(acceptID, localActor string, follow *Activity) (*Activity, error) {
	embedded, err := json.Marshal(ObjectStub{
		ID:     follow.ID,
		Type:   follow.Type,
		Actor:  follow.Actor,
		Object: follow.Object,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed follow object: %w", err)
	}

	return &Activity{
		Context: ActivityStreamsContext,
		ID:      acceptID,
		Type:    "Accept",
		Actor:   localActor,
		Object:  embedded,
	}, nil
}
