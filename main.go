package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tobyv/warbler/activitypub"
	"github.com/tobyv/warbler/store"
	"github.com/tobyv/warbler/util"
	"github.com/tobyv/warbler/web"
)

func main() {
	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal("Failed to read configuration", "err", err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	dataDir := conf.Conf.DataDir
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatal("Failed to create data directory", "err", err)
	}

	keypair, err := util.LoadOrCreateKeypair(filepath.Join(dataDir, "keys"))
	if err != nil {
		log.Fatal("Failed to load actor keypair", "err", err)
	}

	followers, err := store.NewFollowerStore(filepath.Join(dataDir, "followers.json"))
	if err != nil {
		log.Fatal("Failed to open follower store", "err", err)
	}

	queue, err := store.NewQueue(filepath.Join(dataDir, "queue"), conf.ReclaimAfter())
	if err != nil {
		log.Fatal("Failed to open activity queue", "err", err)
	}

	pending, err := store.NewPendingFollows(filepath.Join(dataDir, "pending"))
	if err != nil {
		log.Fatal("Failed to open pending follow store", "err", err)
	}

	keys, err := activitypub.NewKeyStore(keypair.Private, conf.ActorURI(), conf.KeyId())
	if err != nil {
		log.Fatal("Failed to load signing key", "err", err)
	}

	resolver := activitypub.NewResolver(conf.RequestTimeout(), conf.Conf.UserAgent, time.Hour)
	codec := activitypub.NewCodec(keys, resolver, conf.FreshnessWindow())
	deliverer := activitypub.NewDeliverer(codec, resolver, conf.RequestTimeout(), conf.Conf.UserAgent)
	broadcaster := activitypub.NewBroadcaster(deliverer, followers)

	router := activitypub.NewRouter(followers, pending, deliverer,
		conf.Conf.Domain, conf.ActorURI(), conf.Conf.AutoAcceptFollows)

	inbox, err := activitypub.NewInbox(codec, queue, filepath.Join(dataDir, "inbox"), conf.Conf.RequireSignatures)
	if err != nil {
		log.Fatal("Failed to set up inbox", "err", err)
	}

	processor, err := activitypub.NewProcessor(queue, router, broadcaster,
		filepath.Join(dataDir, "outgoing"), filepath.Join(dataDir, "sent"))
	if err != nil {
		log.Fatal("Failed to set up worker", "err", err)
	}

	actorDoc := web.BuildActorDocument(conf, keypair.Public)
	if err := web.WriteActorDocument(actorDoc, dataDir); err != nil {
		log.Fatal("Failed to write actor document", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(ctx, conf.WorkerInterval())

	server := web.NewServer(conf, inbox, followers, actorDoc, dataDir)
	go func() {
		if err := server.Run(); err != nil {
			log.Fatal("HTTP server failed", "err", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Info("Shutting down")
	cancel()
}
