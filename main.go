package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg        Config
		inboxDir   string
		inboxEmail string
	)
	root := &cobra.Command{
		Use:           "krishismart",
		Short:         "KrishiSmart farmer advisory service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = loadConfig()
			setupLogging(cfg.LogLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("inbox-dir") {
				cfg.InboxDir = inboxDir
			}
			if cmd.Flags().Changed("inbox-email") {
				cfg.InboxEmail = inboxEmail
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	serve.Flags().StringVar(&inboxDir, "inbox-dir", "", "also analyze crop photos dropped into this directory (INBOX_DIR)")
	serve.Flags().StringVar(&inboxEmail, "inbox-email", "", "account inbox analyses are stored for (INBOX_EMAIL)")
	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "migrate",
			Short: "Run migrations and seeding, then exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg.AutoMigrate = true
				if _, err := initDB(cfg); err != nil {
					return err
				}
				fmt.Println("migration and seeding completed")
				return nil
			},
		},
		newWatchInboxCmd(&cfg),
	)
	return root
}

func setupLogging(level string) {
	log.SetHandler(text.New(os.Stderr))
	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
		log.WithField("level", level).Warn("unknown LOG_LEVEL, using info")
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runServe(parent context.Context, cfg Config) error {
	db, err := initDB(cfg)
	if err != nil {
		return err
	}
	s := newServer(cfg, db)
	defer s.Close()

	r := gin.Default()
	s.setupRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
	}
	ctx, stop := signalContext(parent)
	defer stop()

	inboxDone := make(chan struct{})
	if cfg.InboxDir != "" {
		w, err := s.inboxWatcher(ctx, cfg.InboxDir, cfg.InboxEmail, cfg.InboxWorkers)
		if err != nil {
			return err
		}
		go func() {
			defer close(inboxDone)
			if err := w.Run(ctx); err != nil {
				log.WithError(err).Error("inbox watcher stopped")
			}
		}()
	} else {
		close(inboxDone)
	}
	// the watcher writes through the cache, so it must stop before s.Close
	defer func() {
		stop()
		<-inboxDone
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newWatchInboxCmd(cfg *Config) *cobra.Command {
	var (
		dir     string
		email   string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "watch-inbox",
		Short: "Analyze crop photos dropped into a directory, without the API",
		Long: "Runs the inbox watcher on its own. A server sharing the database picks the\n" +
			"new analyses up once its cached reads pass QUERY_STALE_TIME; use serve\n" +
			"--inbox-dir to have them show up immediately.",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := initDB(*cfg)
			if err != nil {
				return err
			}
			s := newServer(*cfg, db)
			defer s.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			w, err := s.inboxWatcher(ctx, dir, email, workers)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "inbox", "directory to watch for crop photos")
	cmd.Flags().StringVar(&email, "email", "", "account the analyses are stored for")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (default NumCPU)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
