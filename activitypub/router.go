package activitypub

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/tobyv/warbler/domain"
	"github.com/tobyv/warbler/store"
)

// Classification failures. The queue entry is marked failed and the
// dispatch loop moves on; they never crash the worker.
var (
	ErrMalformedActivity = errors.New("malformed activity")
	ErrUnknownWrapper    = errors.New("unknown wrapper object")
)

// HandlerFunc applies the effect of one classified activity.
type HandlerFunc func(ctx context.Context, act *domain.Activity) error

// Router classifies inbound activities by dispatch key and applies the
// matching handler. Unregistered keys are accepted and dropped, so unknown
// activity types from newer servers never fail the queue.
type Router struct {
	handlers   map[string]HandlerFunc
	followers  *store.FollowerStore
	pending    *store.PendingFollows
	deliverer  *Deliverer
	domainName string
	localActor string
	autoAccept bool
}

// NewRouter wires the handler registry for the supported activity set.
func NewRouter(followers *store.FollowerStore, pending *store.PendingFollows, deliverer *Deliverer, domainName, localActor string, autoAccept bool) *Router {
	r := &Router{
		followers:  followers,
		pending:    pending,
		deliverer:  deliverer,
		domainName: domainName,
		localActor: localActor,
		autoAccept: autoAccept,
	}

	r.handlers = map[string]HandlerFunc{
		"Follow":      r.handleFollow,
		"Undo.Follow": r.handleUndoFollow,
		"Accept":      r.handleFollowResponse,
		"Reject":      r.handleFollowResponse,
	}

	return r
}

// Dispatch classifies the activity and runs its handler. A key with no
// registered handler is a no-op, not an error.
func (r *Router) Dispatch(ctx context.Context, act *domain.Activity) error {
	if act.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformedActivity)
	}

	key, err := act.DispatchKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownWrapper, err)
	}

	handler, ok := r.handlers[key]
	if !ok {
		log.Info("Ignoring unsupported activity", "key", key, "id", act.ID)
		return nil
	}

	return handler(ctx, act)
}

// handleFollow adds the follower and answers with a signed Accept when
// auto-accept is on; otherwise the request is parked for manual review.
func (r *Router) handleFollow(ctx context.Context, act *domain.Activity) error {
	if act.Actor == "" {
		return fmt.Errorf("%w: follow without actor", ErrMalformedActivity)
	}

	if !r.autoAccept {
		log.Info("Recording follow request for manual review", "actor", act.Actor)
		return r.pending.Add(act)
	}

	added, err := r.followers.Add(act.Actor)
	if err != nil {
		return fmt.Errorf("failed to add follower %s: %w", act.Actor, err)
	}
	if !added {
		log.Info("Follower already present", "actor", act.Actor)
	}

	acceptID := fmt.Sprintf("https://%s/activitypub/activities/accept-%s", r.domainName, uuid.New().String())
	accept, err := domain.NewAccept(acceptID, r.localActor, act)
	if err != nil {
		return err
	}

	outcome := r.deliverer.DeliverToActor(ctx, accept, act.Actor)
	if !outcome.Succeeded() {
		// The follower state is already durable; the remote side will
		// retry its Follow if it never sees our Accept.
		log.Warn("Accept delivery failed", "actor", act.Actor, "reason", outcome.Failure, "detail", outcome.Detail)
	} else {
		log.Info("Accepted follow", "actor", act.Actor, "status", outcome.StatusCode)
	}
	return nil
}

// handleUndoFollow removes the follower named by the embedded Follow.
// Unfollowing someone who never followed is a no-op.
func (r *Router) handleUndoFollow(ctx context.Context, act *domain.Activity) error {
	obj, err := act.EmbeddedObject()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedActivity, err)
	}

	follower := obj.Actor
	if follower == "" {
		follower = act.Actor
	}
	if follower == "" {
		return fmt.Errorf("%w: undo follow without actor", ErrMalformedActivity)
	}

	removed, err := r.followers.Remove(follower)
	if err != nil {
		return fmt.Errorf("failed to remove follower %s: %w", follower, err)
	}
	if removed {
		log.Info("Removed follower", "actor", follower)
	}
	return nil
}

// handleFollowResponse records Accept/Reject responses to our own outgoing
// Follow requests. Informational only; no state changes.
func (r *Router) handleFollowResponse(ctx context.Context, act *domain.Activity) error {
	if act.Actor == "" {
		return fmt.Errorf("%w: %s without actor", ErrMalformedActivity, act.Type)
	}
	log.Info("Follow response received", "type", act.Type, "actor", act.Actor, "object", act.ObjectURI())
	return nil
}
