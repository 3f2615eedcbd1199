package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrapemaster/sentinel/internal/config"
	"github.com/scrapemaster/sentinel/internal/version"
	"github.com/scrapemaster/sentinel/pkg/blocklist"
	"github.com/scrapemaster/sentinel/pkg/correlation"
	"github.com/scrapemaster/sentinel/pkg/logger"
	"github.com/scrapemaster/sentinel/pkg/ratelimit"
	"github.com/scrapemaster/sentinel/pkg/signature"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the threat detection server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			log := logger.NewStructuredLogger(cfg.Logging.Level, cfg.Logging.Format)
			runtime, err := BuildRuntime(cfg, log, nil)
			if err != nil {
				return err
			}
			if err := runtime.Start(); err != nil {
				return fmt.Errorf("starting runtime: %w", err)
			}
			defer runtime.Stop()

			srv := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler:      runtime.Router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			go func() {
				log.WithFields(map[string]interface{}{"addr": srv.Addr}).Info("Server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.WithError(err).Fatal("Server failed")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info("Shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

func NewUnblockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <ip>",
		Short: "Remove a standing block for an IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if !cfg.Redis.Enabled {
				return fmt.Errorf("unblock requires the Redis block store; in-memory blocks live inside the server process, use the security API instead")
			}

			store := blocklist.NewRedisStore(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			key := blocklist.IPKey(args[0])
			if err := store.Delete(ctx, key); err != nil {
				return fmt.Errorf("removing block for %s: %w", args[0], err)
			}
			fmt.Printf("Unblocked %s\n", args[0])
			return nil
		},
	}
}

func NewCheckRulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-rules",
		Short: "Validate signature, pattern and rate rule files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			if cfg.Detection.SignatureFile != "" {
				signatures, err := signature.LoadFile(cfg.Detection.SignatureFile)
				if err != nil {
					return err
				}
				fmt.Printf("signatures: %d ok (%s)\n", len(signatures), cfg.Detection.SignatureFile)
			}
			if cfg.Detection.PatternFile != "" {
				patterns, err := correlation.LoadPatternFile(cfg.Detection.PatternFile)
				if err != nil {
					return err
				}
				fmt.Printf("patterns: %d ok (%s)\n", len(patterns), cfg.Detection.PatternFile)
			}
			if cfg.Detection.RateRuleFile != "" {
				rules, err := ratelimit.LoadRuleFile(cfg.Detection.RateRuleFile)
				if err != nil {
					return err
				}
				fmt.Printf("rate rules: %d ok (%s)\n", len(rules), cfg.Detection.RateRuleFile)
			}
			return nil
		},
	}
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Sentinel v%s\n", version.Version)
			fmt.Printf("Commit: %s\n", version.Commit)
			fmt.Printf("Build Date: %s\n", version.Date)
		},
	}
}
