package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/wfunc/landfluss/client"
	"github.com/wfunc/landfluss/config"
	"github.com/wfunc/landfluss/console"
	"github.com/wfunc/landfluss/engine"
	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/network"
	"github.com/wfunc/landfluss/persistence"
	"github.com/wfunc/landfluss/protocol"
	"github.com/wfunc/landfluss/services"
)

const (
	redialAttempts = 5
	redialDelay    = 2 * time.Second
)

var peerFlags = map[string]string{
	"url":       "peer.url",
	"name":      "peer.name",
	"password":  "peer.password",
	"countdown": "game.countdown",
	"db-driver": "database.driver",
	"db-dsn":    "database.dsn",
}

func newHostCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Open a new room and play in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd, peerFlags)
			if err != nil {
				return err
			}
			return play(cmd.Context(), cfg, network.Hello{Create: true})
		},
	}
	addPeerFlags(cmd)
	return cmd
}

func newJoinCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room by its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd, peerFlags)
			if err != nil {
				return err
			}
			return play(cmd.Context(), cfg, network.Hello{Room: strings.ToUpper(args[0])})
		},
	}
	addPeerFlags(cmd)
	return cmd
}

func addPeerFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.String("url", "ws://localhost:8080", "relay base url (env: LANDFLUSS_PEER_URL)")
	fs.StringP("name", "n", "", "your player name (env: LANDFLUSS_PEER_NAME)")
	fs.StringP("password", "p", "", "room password (env: LANDFLUSS_PEER_PASSWORD)")
	fs.Duration("countdown", engine.DefaultCountdown, "pause before word entry (env: LANDFLUSS_GAME_COUNTDOWN)")
	addDatabaseFlags(cmd)
}

func play(ctx context.Context, cfg *config.Config, hello network.Hello) error {
	defer logger.Sync()

	hello.Name = cfg.Peer.Name
	hello.Password = cfg.Peer.Password
	hello.Version = protocol.Version
	base := strings.TrimSuffix(cfg.Peer.URL, "/")

	url := base + "/ws"
	if hello.Room != "" {
		url += "/" + hello.Room
	}
	peer, err := client.Dial(ctx, url, hello, client.Options{
		Name:            cfg.Peer.Name,
		Password:        cfg.Peer.Password,
		DeliveryTimeout: cfg.Peer.DeliveryTimeout,
		Heartbeat:       cfg.Server.Heartbeat / 2,
	})
	if err != nil {
		return err
	}
	defer peer.Close()

	joinURL := base + "/ws/" + peer.Room()
	fmt.Printf("room %s\n", peer.Room())
	if peer.IsHost() {
		if qr, err := qrcode.New(joinURL, qrcode.Medium); err == nil {
			fmt.Print(qr.ToSmallString(false))
		}
		fmt.Printf("join with: landfluss join %s --url %s\n", peer.Room(), base)
	}

	db, err := persistence.Open(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	defer db.Close()
	history := services.NewHistoryService(db)

	con := console.New(os.Stdout)
	hooks := con.Hooks()
	printCommitted := hooks.RoundCommitted
	hooks.RoundCommitted = func(rec models.RoundRecord) {
		printCommitted(rec)
		if peer.IsHost() {
			history.OnRoundCommitted(rec)
		}
	}

	gameConfig := models.NewGameConfig(cfg.Game.Categories...)
	e := engine.NewTurnEngine(peer, engine.Options{
		Config:    &gameConfig,
		Countdown: cfg.Game.Countdown,
		Hooks:     hooks,
	})
	defer e.Close()
	con.Bind(e, peer.Rename)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- serve(ctx, peer, joinURL)
		cancel()
	}()

	fmt.Println(`type "help" for commands`)
	err = con.Run(ctx, os.Stdin)
	cancel()
	if serveErr := <-served; serveErr != nil {
		return serveErr
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serve reads from the relay and resumes the session when the connection drops.
func serve(ctx context.Context, peer *client.Peer, url string) error {
	for {
		err := peer.Serve(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logger.Log.Warnf("Connection to relay lost: %v", err)

		var resumed bool
		for attempt := 1; attempt <= redialAttempts && !resumed; attempt++ {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(redialDelay):
			}
			if err := peer.Redial(ctx, url); err != nil {
				if errors.Is(err, client.ErrClosed) {
					return nil
				}
				logger.Log.Warnw("Resume failed", "attempt", attempt, "error", err)
				continue
			}
			resumed = true
		}
		if !resumed {
			return fmt.Errorf("could not resume room %s", peer.Room())
		}
	}
}
