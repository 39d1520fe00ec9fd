package activitypub

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/tobyv/warbler/domain"
	"github.com/tobyv/warbler/store"
)

// Inbox is the receiving side: it authenticates an inbound request, saves
// the raw activity, and enqueues it for the worker. Dispatch happens later
// and possibly in a different process run.
type Inbox struct {
	codec      *Codec
	queue      *store.Queue
	inboxDir   string
	requireSig bool
}

func NewInbox(codec *Codec, queue *store.Queue, inboxDir string, requireSig bool) (*Inbox, error) {
	if err := os.MkdirAll(inboxDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}
	return &Inbox{codec: codec, queue: queue, inboxDir: inboxDir, requireSig: requireSig}, nil
}

// HandleInbox processes one POST to the actor inbox. Authentication
// failures reject the request with 401 when signatures are required; in
// advisory mode they are logged and the activity is accepted anyway.
func (in *Inbox) HandleInbox(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("Inbox: failed to read body", "err", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	headers := r.Header.Clone()
	if headers.Get("Host") == "" {
		headers.Set("Host", r.Host)
	}

	actorURI, err := in.codec.Verify(r.Method, path, headers, body)
	if err != nil {
		if in.requireSig {
			log.Warn("Inbox: rejecting unauthenticated request", "err", err)
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
		log.Warn("Inbox: signature verification failed, accepting anyway", "err", err)
	}

	act, err := domain.ParseActivity(body)
	if err != nil {
		log.Warn("Inbox: unparseable activity", "err", err)
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}

	log.Info("Inbox: received activity", "type", act.Type, "actor", act.Actor, "signer", actorURI)

	if err := in.saveActivity(act.Type, body); err != nil {
		log.Error("Inbox: failed to save activity", "err", err)
		http.Error(w, "Failed to store activity", http.StatusInternalServerError)
		return
	}

	entryId, err := in.queue.Enqueue(act.ID, body)
	if err != nil {
		log.Error("Inbox: failed to enqueue activity", "err", err)
		http.Error(w, "Failed to queue activity", http.StatusInternalServerError)
		return
	}

	log.Debug("Inbox: queued activity", "entry", entryId, "activity", act.ID)
	w.WriteHeader(http.StatusAccepted)
}

// saveActivity persists the raw inbound document so the queue entry stays
// reconstructable and operators can inspect what arrived.
func (in *Inbox) saveActivity(activityType string, body []byte) error {
	if activityType == "" {
		activityType = "unknown"
	}
	name := fmt.Sprintf("%s-%s-%s.json",
		strings.ToLower(activityType),
		time.Now().UTC().Format("20060102-150405"),
		uuid.New().String()[:8])

	tmp := filepath.Join(in.inboxDir, name+".tmp")
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return fmt.Errorf("failed to write activity file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(in.inboxDir, name)); err != nil {
		return fmt.Errorf("failed to store activity file: %w", err)
	}
	return nil
}
