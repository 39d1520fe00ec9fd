package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"github.com/tobyv/warbler/domain"
	"github.com/tobyv/warbler/store"
)

const contentTypeActivityJSON = "application/activity+json"

// Deliverer posts one signed activity to one remote inbox and reports a
// per-recipient outcome. Failures are recorded, never propagated; callers
// may re-invoke for recipients that failed.
type Deliverer struct {
	codec     *Codec
	resolver  *Resolver
	client    *resty.Client
	userAgent string
}

// NewDeliverer builds a Deliverer. timeout bounds each outbound transfer so
// one slow peer cannot stall a broadcast indefinitely.
func NewDeliverer(codec *Codec, resolver *Resolver, timeout time.Duration, userAgent string) *Deliverer {
	return &Deliverer{
		codec:     codec,
		resolver:  resolver,
		client:    resty.New().SetTimeout(timeout),
		userAgent: userAgent,
	}
}

// DeliverToActor resolves the recipient's inbox, signs the serialized
// activity and posts it. The returned outcome is never an error: resolution
// and transfer failures are folded into the outcome's failure reason.
func (d *Deliverer) DeliverToActor(ctx context.Context, act *domain.Activity, recipientURI string) domain.DeliveryOutcome {
	raw, err := json.Marshal(act)
	if err != nil {
		return failure(recipientURI, domain.FailureUnreachable, fmt.Sprintf("marshal: %v", err))
	}
	return d.DeliverRaw(ctx, raw, recipientURI)
}

// DeliverRaw is DeliverToActor for an already-serialized activity. The raw
// bytes are only read, so broadcasts share one serialization across
// concurrent deliveries.
func (d *Deliverer) DeliverRaw(ctx context.Context, raw []byte, recipientURI string) domain.DeliveryOutcome {
	inbox, err := d.resolver.InboxFor(recipientURI)
	if err != nil {
		return failure(recipientURI, domain.FailureUnreachable, err.Error())
	}
	if inbox == "" {
		return failure(recipientURI, domain.FailureNoInbox, "actor document has no inbox")
	}

	inboxURL, err := url.Parse(inbox)
	if err != nil {
		return failure(recipientURI, domain.FailureNoInbox, fmt.Sprintf("bad inbox uri: %v", err))
	}
	path := inboxURL.Path
	if inboxURL.RawQuery != "" {
		path += "?" + inboxURL.RawQuery
	}

	headers := map[string]string{
		"Host":         inboxURL.Host,
		"Date":         time.Now().UTC().Format(http.TimeFormat),
		"Content-Type": contentTypeActivityJSON,
		"Accept":       contentTypeActivityJSON,
		"User-Agent":   d.userAgent,
	}

	signature, err := d.codec.Sign("POST", path, headers, raw)
	if err != nil {
		return failure(recipientURI, domain.FailureUnreachable, fmt.Sprintf("sign: %v", err))
	}
	headers["Signature"] = signature

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(raw).
		Post(inbox)
	if err != nil {
		if isTimeout(err) {
			return failure(recipientURI, domain.FailureTimeout, err.Error())
		}
		return failure(recipientURI, domain.FailureUnreachable, err.Error())
	}

	outcome := domain.DeliveryOutcome{
		Recipient:   recipientURI,
		AttemptedAt: time.Now(),
		StatusCode:  resp.StatusCode(),
	}
	if resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		outcome.Delivered = true
	} else {
		outcome.Failure = domain.FailureStatus
		outcome.Detail = fmt.Sprintf("remote server returned status %d", resp.StatusCode())
	}
	return outcome
}

// Broadcaster fans one activity out to every current follower.
type Broadcaster struct {
	deliverer *Deliverer
	followers *store.FollowerStore
}

func NewBroadcaster(deliverer *Deliverer, followers *store.FollowerStore) *Broadcaster {
	return &Broadcaster{deliverer: deliverer, followers: followers}
}

// BroadcastToFollowers delivers the activity to a snapshot of the follower
// set, one concurrent attempt per recipient. Every recipient gets exactly
// one outcome; no failure blocks another attempt.
func (b *Broadcaster) BroadcastToFollowers(ctx context.Context, act *domain.Activity) ([]domain.DeliveryOutcome, error) {
	raw, err := json.Marshal(act)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity: %w", err)
	}
	return b.BroadcastRaw(ctx, raw), nil
}

// BroadcastRaw is BroadcastToFollowers for an already-serialized activity.
func (b *Broadcaster) BroadcastRaw(ctx context.Context, raw []byte) []domain.DeliveryOutcome {
	recipients := b.followers.List()
	outcomes := make([]domain.DeliveryOutcome, len(recipients))

	var wg sync.WaitGroup
	for i, recipient := range recipients {
		wg.Add(1)
		go func(i int, recipient string) {
			defer wg.Done()
			outcomes[i] = b.deliverer.DeliverRaw(ctx, raw, recipient)
		}(i, recipient)
	}
	wg.Wait()

	delivered := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			delivered++
		}
	}
	log.Info("Broadcast complete", "recipients", len(recipients), "delivered", delivered)

	return outcomes
}

func failure(recipient, reason, detail string) domain.DeliveryOutcome {
	return domain.DeliveryOutcome{
		Recipient:   recipient,
		AttemptedAt: time.Now(),
		Failure:     reason,
		Detail:      detail,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}
