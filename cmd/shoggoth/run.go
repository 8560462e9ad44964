package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shog-ai/shoggoth/internal/dht"
	"github.com/shog-ai/shoggoth/internal/httpapi"
	"github.com/shog-ai/shoggoth/internal/identity"
	"github.com/shog-ai/shoggoth/internal/pinstore"
	"github.com/shog-ai/shoggoth/internal/replication"
	"github.com/shog-ai/shoggoth/internal/shoggoth"
	"github.com/shog-ai/shoggoth/internal/storeclient"
	"github.com/shog-ai/shoggoth/internal/supervisor"
)

// runCmd is the only subcommand implemented in depth: it wires
// config -> identity -> supervisor -> HTTP server -> background
// loops, the full bootstrap sequence described by run_node_server in
// original_source/src/node/node.c.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the node in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode()
		},
	}
}

func runNode() error {
	log := logrus.StandardLogger()
	layout := resolveLayout()

	cfg, err := loadConfig(layout)
	if err != nil {
		return err
	}

	privPEM, pubPEM, err := loadOrGenerateIdentity(layout)
	if err != nil {
		return err
	}
	priv, err := identity.LoadPrivateKey(privPEM)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	pub, err := identity.LoadPublicKey(pubPEM)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	strippedPub := identity.StripPublicKey(string(pubPEM))

	store := storeclient.New(cfg.DB.Host, cfg.DB.Port)
	ctx := shoggoth.New(cfg, layout, log, store, priv, pub, strippedPub)

	log.Infof("node id: %s", ctx.NodeID)
	log.Infof("public host: %s", ctx.PublicHost())

	sv := supervisor.New(ctx)
	if err := sv.LaunchStore(); err != nil {
		return err
	}
	if err := sv.WaitForStoreReady(); err != nil {
		sv.Fatal(err)
	}

	dhtStore := dht.NewStore(store)
	index := pinstore.NewIndex(store)
	if err := sv.Bootstrap(dhtStore, index); err != nil {
		sv.Fatal(err)
	}

	manager := pinstore.NewManager(layout.PinsDir(), index, pinstore.SizePolicy{
		MaxResourceBytes: int64(cfg.Storage.MaxProfileSize * 1024 * 1024),
	})
	uploads := pinstore.NewSessions(layout.TmpDir())

	selfManifest := dht.Manifest{
		NodeID:     string(ctx.NodeID),
		PublicKey:  ctx.PublicPEM,
		PublicHost: ctx.PublicHost(),
	}
	gossip := &dht.Runner{
		Store:               dhtStore,
		Client:              dht.NewPeerClient(),
		Self:                selfManifest,
		Log:                 log,
		AllowPrivateNetwork: cfg.Network.AllowPrivateNetwork,
	}
	if err := gossip.Bootstrap(cfg.Peers.BootstrapPeers); err != nil {
		log.Warnf("dht bootstrap: %v", err)
	}

	replClient := replication.NewClient()
	downloader := &replication.Downloader{DHT: dhtStore, Index: index, Manager: manager, Client: replClient, TmpDir: layout.TmpDir(), Log: log}
	updater := &replication.Updater{DHT: dhtStore, Index: index, Manager: manager, Client: replClient, TmpDir: layout.TmpDir(), Log: log}

	var rateLimiter *httpapi.RateLimiter
	if cfg.API.Enable {
		rateLimiter = httpapi.NewRateLimiter(cfg.API.RateLimiterRequests, cfg.API.RateLimiterDuration)
	}
	server := httpapi.NewServer(ctx, dhtStore, index, manager, uploads, rateLimiter)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Network.Host, cfg.Network.Port),
		Handler: server.Router(),
	}

	if cfg.DHT.EnableUpdater {
		go gossip.Loop(time.Duration(cfg.DHT.UpdaterFrequency)*time.Second, ctx.Done())
	}
	if cfg.Pins.EnableDownloader {
		go downloader.Loop(time.Duration(cfg.Pins.DownloaderFrequency)*time.Second, ctx.Done())
	}
	if cfg.Pins.EnableUpdater {
		go updater.Loop(time.Duration(cfg.Pins.UpdaterFrequency)*time.Second, ctx.Done())
	}

	go func() {
		log.Infof("serving http on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server: %v", err)
		}
	}()

	sv.WatchSignals(httpServer)
	return nil
}
