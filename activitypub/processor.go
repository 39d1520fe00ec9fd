package activitypub

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tobyv/warbler/domain"
	"github.com/tobyv/warbler/store"
)

// Processor is the worker side: it claims queue entries, dispatches them
// through the router, and broadcasts anything dropped into the outgoing
// spool. Safe to run concurrently with the receiving side.
type Processor struct {
	queue       *store.Queue
	router      *Router
	broadcaster *Broadcaster
	outgoingDir string
	sentDir     string
}

func NewProcessor(queue *store.Queue, router *Router, broadcaster *Broadcaster, outgoingDir, sentDir string) (*Processor, error) {
	for _, dir := range []string{outgoingDir, sentDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return &Processor{
		queue:       queue,
		router:      router,
		broadcaster: broadcaster,
		outgoingDir: outgoingDir,
		sentDir:     sentDir,
	}, nil
}

// Run drives the worker on the given interval until the context is
// cancelled.
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	log.Info("Starting activity worker", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Activity worker stopping")
			return
		case <-ticker.C:
			p.ProcessQueue(ctx)
			p.ProcessOutgoing(ctx)
		}
	}
}

// ProcessQueue drains the inbound queue. Every claimed entry reaches
// exactly one terminal state; classification failures mark the entry
// failed and the loop continues with the next one.
func (p *Processor) ProcessQueue(ctx context.Context) (processed, failed int) {
	for {
		entry, err := p.queue.ClaimNext()
		if err != nil {
			log.Error("Failed to claim queue entry", "err", err)
			return processed, failed
		}
		if entry == nil {
			return processed, failed
		}

		act, err := domain.ParseActivity(entry.Activity)
		if err != nil {
			log.Warn("Dropping unparseable queue entry", "entry", entry.ID, "err", err)
			p.markFailed(entry.ID, "unparseable activity")
			failed++
			continue
		}

		if err := p.router.Dispatch(ctx, act); err != nil {
			if errors.Is(err, ErrMalformedActivity) || errors.Is(err, ErrUnknownWrapper) {
				log.Warn("Activity failed classification", "entry", entry.ID, "err", err)
			} else {
				log.Error("Activity dispatch failed", "entry", entry.ID, "err", err)
			}
			p.markFailed(entry.ID, err.Error())
			failed++
			continue
		}

		if err := p.queue.Complete(entry.ID); err != nil {
			log.Error("Failed to complete queue entry", "entry", entry.ID, "err", err)
		}
		processed++
	}
}

// ProcessOutgoing broadcasts every activity in the spool directory to the
// current followers and moves the file to sent/. Delivery failures are
// reported per recipient and do not keep the file in the spool; callers
// re-drop a file to retry.
func (p *Processor) ProcessOutgoing(ctx context.Context) {
	entries, err := os.ReadDir(p.outgoingDir)
	if err != nil {
		log.Error("Failed to read outgoing spool", "err", err)
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(p.outgoingDir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Error("Failed to read outgoing activity", "file", name, "err", err)
			continue
		}

		if _, err := domain.ParseActivity(raw); err != nil {
			log.Warn("Skipping malformed outgoing activity", "file", name, "err", err)
			continue
		}

		outcomes := p.broadcaster.BroadcastRaw(ctx, raw)
		for _, o := range outcomes {
			if !o.Succeeded() {
				log.Warn("Delivery failed", "file", name, "recipient", o.Recipient, "reason", o.Failure, "detail", o.Detail)
			}
		}

		if err := os.Rename(path, filepath.Join(p.sentDir, name)); err != nil {
			log.Error("Failed to move outgoing activity to sent", "file", name, "err", err)
		}
	}
}

func (p *Processor) markFailed(entryId, reason string) {
	if err := p.queue.Fail(entryId, reason); err != nil {
		log.Error("Failed to mark queue entry failed", "entry", entryId, "err", err)
	}
}
