package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "sherlock/internal/config"
	logpkg "sherlock/pkg/log"
	"sherlock/persist"
	"sherlock/stream"
)

func main() {
	level := os.Getenv("SHERLOCK_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "sherlockd",
		Short: "Sherlock stream engine CLI",
		Long:  "sherlockd hosts a single typed event stream and exposes it over HTTP. This CLI starts the server and performs basic publish/tail operations.",
	}

	rootCmd.AddCommand(newServeCmd(logger))
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newTailCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd(logger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP stream server",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			backend, _ := cmd.Flags().GetString("backend")
			fsync, _ := cmd.Flags().GetString("fsync")

			cfg := cfgpkg.Default()
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if backend != "" {
				cfg.Backend = backend
			}
			if fsync != "" {
				switch fsync {
				case "always":
					cfg.Fsync = persist.FsyncAlways
				case "interval":
					cfg.Fsync = persist.FsyncInterval
				case "never":
					cfg.Fsync = persist.FsyncNever
				default:
					return fmt.Errorf("invalid --fsync; use always|interval|never")
				}
			}
			cfgpkg.FromEnv(&cfg)

			s, closePersister, err := openStream(cfg, logger)
			if err != nil {
				return fmt.Errorf("open stream: %w", err)
			}
			_ = closePersister

			mux := http.NewServeMux()
			mux.HandleFunc("/stream", s.ServeHTTP)
			server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("sherlockd listening", logpkg.Str("addr", cfg.HTTPAddr), logpkg.Str("backend", cfg.Backend))
				errCh <- server.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
			return s.Close()
		},
	}
	cmd.Flags().String("data-dir", "", "Data directory (default: OS-specific application data directory)")
	cmd.Flags().String("http", ":8080", "HTTP listen address")
	cmd.Flags().String("backend", "pebble", "Storage backend: memory|file|pebble")
	cmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	return cmd
}

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Append one entry to the stream and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			backend, _ := cmd.Flags().GetString("backend")

			cfg := cfgpkg.Default()
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if backend != "" {
				cfg.Backend = backend
			}
			cfgpkg.FromEnv(&cfg)

			s, _, err := openStream(cfg, nil)
			if err != nil {
				return fmt.Errorf("open stream: %w", err)
			}
			defer s.Close()

			idxts, err := s.Publish(Entry{Text: text})
			if err != nil {
				return err
			}
			fmt.Printf("published index=%d us=%d\n", idxts.Index, idxts.Us)
			return nil
		},
	}
	cmd.Flags().String("text", "", "Entry text to publish")
	cmd.Flags().String("data-dir", "", "Data directory (default: OS-specific application data directory)")
	cmd.Flags().String("backend", "pebble", "Storage backend: memory|file|pebble")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream entries from a running sherlockd over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			httpURL, _ := cmd.Flags().GetString("url")
			tail, _ := cmd.Flags().GetString("tail")
			n, _ := cmd.Flags().GetInt("n")
			nowait, _ := cmd.Flags().GetBool("nowait")

			u, err := url.Parse(httpURL)
			if err != nil {
				return err
			}
			q := u.Query()
			if tail != "" {
				q.Set("tail", tail)
			}
			if n > 0 {
				q.Set("n", fmt.Sprintf("%d", n))
			}
			if nowait {
				q.Set("nowait", "")
			}
			u.RawQuery = q.Encode()

			resp, err := http.Get(u.String())
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("sherlockd returned %s", resp.Status)
			}

			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for scanner.Scan() {
				var raw json.RawMessage
				line := scanner.Bytes()
				if err := json.Unmarshal(line, &raw); err != nil {
					continue
				}
				fmt.Println(string(line))
			}
			return scanner.Err()
		},
	}
	cmd.Flags().String("url", "http://127.0.0.1:8080/stream", "sherlockd HTTP endpoint")
	cmd.Flags().String("tail", "", "Start position: number of recent entries, or \"max\" to skip the backlog")
	cmd.Flags().Int("n", 0, "Maximum number of entries to deliver (0 = unbounded)")
	cmd.Flags().Bool("nowait", false, "Return immediately once caught up instead of blocking for new entries")
	return cmd
}

// openStream builds a persist.Persister[Entry] per cfg.Backend and wraps
// it in a *stream.Stream[Entry]. The returned close func is the persister's
// Close; the callers here close the Stream instead, which closes the
// persister.
func openStream(cfg cfgpkg.Config, logger logpkg.Logger) (*stream.Stream[Entry], func() error, error) {
	ns := stream.NamespaceName{Namespace: "default", EntryName: "Entry"}
	switch cfg.Backend {
	case "memory":
		p := persist.NewMemoryPersister[Entry]()
		return stream.NewWithLogger[Entry](p, ns, logger), p.Close, nil
	case "file":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, err
		}
		path := filepath.Join(cfg.DataDir, "stream.jsonl")
		p, err := persist.OpenFilePersister[Entry](path, cfg.Fsync, time.Duration(cfg.FsyncIntervalMs)*time.Millisecond)
		if err != nil {
			return nil, nil, err
		}
		return stream.NewWithLogger[Entry](p, ns, logger), p.Close, nil
	case "pebble", "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, err
		}
		p, err := persist.OpenPebblePersister[Entry](cfg.DataDir, "Entry", cfg.Fsync)
		if err != nil {
			return nil, nil, err
		}
		return stream.NewWithLogger[Entry](p, ns, logger), p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
