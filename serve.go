package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/persistence"
	"github.com/wfunc/landfluss/server"
	"github.com/wfunc/landfluss/services"
)

func newServeCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd, map[string]string{
				"addr":        "server.http_address",
				"rpc-addr":    "server.rpc_address",
				"public-url":  "server.public_url",
				"max-players": "server.max_players",
			})
			if err != nil {
				return err
			}
			defer logger.Sync()

			gameServer, err := server.NewGameServer(server.Options{
				HTTPAddress:     cfg.Server.HTTPAddress,
				RPCAddress:      cfg.Server.RPCAddress,
				PublicURL:       cfg.Server.PublicURL,
				Version:         version,
				MaxPlayers:      cfg.Server.MaxPlayers,
				TokenSecret:     cfg.Server.TokenSecret,
				TokenTTL:        cfg.Server.TokenTTL,
				Heartbeat:       cfg.Server.Heartbeat,
				IdleTimeout:     cfg.Server.IdleTimeout,
				DeliveryTimeout: cfg.Server.DeliveryTimeout,
				ReapInterval:    cfg.Server.ReapInterval,
			})
			if err != nil {
				return err
			}

			logger.Log.Infof("Starting relay %s on %s", version, cfg.Server.HTTPAddress)
			err = gameServer.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	fs := cmd.Flags()
	fs.String("addr", ":8080", "http listen address (env: LANDFLUSS_SERVER_HTTP_ADDRESS)")
	fs.String("rpc-addr", ":9090", "grpc health listen address, empty to disable (env: LANDFLUSS_SERVER_RPC_ADDRESS)")
	fs.String("public-url", "", "websocket base url shown in join QR codes (env: LANDFLUSS_SERVER_PUBLIC_URL)")
	fs.Int("max-players", 16, "players per room (env: LANDFLUSS_SERVER_MAX_PLAYERS)")
	return cmd
}

func newHistoryCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <game>",
		Short: "Show the standings of a recorded game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd, map[string]string{
				"db-driver": "database.driver",
				"db-dsn":    "database.dsn",
			})
			if err != nil {
				return err
			}
			db, err := persistence.Open(cfg.Database.Driver, cfg.DatabaseDSN())
			if err != nil {
				return err
			}
			defer db.Close()

			standings, err := services.NewHistoryService(db).Standings(cmd.Context(), args[0])
			if errors.Is(err, persistence.ErrRecordNotFound) {
				return fmt.Errorf("no rounds recorded for game %s", args[0])
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tplayer\trounds\tpoints")
			for i, st := range standings {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", i+1, st.Name, st.Rounds, st.Points)
			}
			return tw.Flush()
		},
	}
	addDatabaseFlags(cmd)
	return cmd
}

func addDatabaseFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-driver", persistence.DriverMemory, "round history store: memory, sqlite, postgres or gorm (env: LANDFLUSS_DATABASE_DRIVER)")
	cmd.Flags().String("db-dsn", "", "round history data source (env: LANDFLUSS_DATABASE_DSN)")
}
