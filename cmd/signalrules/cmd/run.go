package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/audumla/signalrules/internal/core/config"
	"github.com/audumla/signalrules/internal/core/db"
	"github.com/audumla/signalrules/internal/loader"
	"github.com/audumla/signalrules/internal/rules"
	"github.com/audumla/signalrules/internal/types"
)

/*
 * Run command.
 *
 * Reads newline-delimited JSON telemetry events from stdin (or a file),
 * feeds them through the engine, and writes fired actions as JSON lines to
 * stdout. Maintains the rolling recent-events context across entries.
 *
 * With --watch, catalog and rule documents hot-reload on change as a full
 * atomic swap; a reload failure logs and keeps the previous snapshot.
 * With a journal database configured, every processed notification and
 * every fired action is recorded.
 */

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process telemetry events through the rule engine",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("catalog", "", "signals catalog document path")
	runCmd.Flags().String("rules", "", "rule document path")
	runCmd.Flags().String("events", "", "event input path (default stdin)")
	runCmd.Flags().String("identity", "", "identity key for match-state tracking")
	runCmd.Flags().String("source", "", "source tag attached to each payload")
	runCmd.Flags().Bool("watch", false, "hot-reload catalog/rule documents on change")
}

func runRun(cobraCmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyRunFlags(cobraCmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	cat, err := loader.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	ruleDoc, err := loader.LoadRules(cfg.RulesPath)
	if err != nil {
		return err
	}
	engine, err := rules.New(cat, ruleDoc, log)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	for _, d := range engine.Dropped() {
		log.Warn("rule excluded", "index", d.Index, "title", d.Title, "reason", d.Reason)
	}

	var journal *db.Queries
	if cfg.DBURL != "" {
		conn, err := db.Open(cfg.DBURL)
		if err != nil {
			return fmt.Errorf("failed to open journal database: %w", err)
		}
		defer conn.Close()
		journal, err = db.LoadQueries(conn)
		if err != nil {
			return err
		}
	}

	if cfg.Watch {
		watcher, err := loader.Watch(
			[]string{cfg.CatalogPath, cfg.RulesPath},
			func() { reloadDocuments(engine, cfg, log) },
			log,
		)
		if err != nil {
			return fmt.Errorf("failed to start document watcher: %w", err)
		}
		defer watcher.Close()
	}

	input := os.Stdin
	if path, _ := cobraCmd.Flags().GetString("events"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info("shutting down")
		if input == os.Stdin {
			os.Stdin.Close()
		}
	}()

	return processEvents(input, engine, journal, cfg, log)
}

// applyRunFlags overlays explicitly-set CLI flags onto the loaded config.
func applyRunFlags(cobraCmd *cobra.Command, cfg *config.RunnerConfig) {
	flags := cobraCmd.Flags()
	if flags.Changed("catalog") {
		cfg.CatalogPath, _ = flags.GetString("catalog")
	}
	if flags.Changed("rules") {
		cfg.RulesPath, _ = flags.GetString("rules")
	}
	if flags.Changed("identity") {
		cfg.Identity, _ = flags.GetString("identity")
	}
	if flags.Changed("source") {
		cfg.Source, _ = flags.GetString("source")
	}
	if flags.Changed("watch") {
		cfg.Watch, _ = flags.GetBool("watch")
	}
	if dbURL != "" {
		cfg.DBURL = dbURL
	}
}

// reloadDocuments swaps in fresh documents, keeping the previous snapshot
// on any load or validation failure.
func reloadDocuments(engine *rules.Engine, cfg *config.RunnerConfig, log *slog.Logger) {
	cat, err := loader.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Error("reload failed, keeping previous catalog", "error", err)
		return
	}
	ruleDoc, err := loader.LoadRules(cfg.RulesPath)
	if err != nil {
		log.Error("reload failed, keeping previous rules", "error", err)
		return
	}
	if err := engine.Swap(cat, ruleDoc); err != nil {
		log.Error("reload failed, keeping previous rules", "error", err)
		return
	}
	for _, d := range engine.Dropped() {
		log.Warn("rule excluded", "index", d.Index, "title", d.Title, "reason", d.Reason)
	}
	log.Info("documents reloaded", "rules", len(engine.Rules()))
}

// processEvents drives the engine from a JSONL event stream.
func processEvents(input io.Reader, engine *rules.Engine, journal *db.Queries, cfg *config.RunnerConfig, log *slog.Logger) error {
	out := json.NewEncoder(os.Stdout)
	identity := types.Identity(cfg.Identity)
	recent := make(map[string]time.Time)

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Warn("skipping malformed event line", "error", err)
			continue
		}
		eventType, _ := entry["event"].(string)

		now := time.Now()
		pruneRecent(recent, now, cfg.RecentTTL)
		ctx := types.EvalContext{RecentEvents: recent, Now: now}

		results := engine.OnNotification(identity, cfg.Source, eventType, entry, ctx)

		if eventType != "" {
			recent[eventType] = now
		}

		var notificationID types.NotificationID
		if journal != nil {
			id, err := journal.InsertNotification(identity, cfg.Source, eventType, entry, now)
			if err != nil {
				log.Warn("journal insert failed", "error", err)
			} else {
				notificationID = id
			}
		}

		for _, result := range results {
			if err := out.Encode(result); err != nil {
				return err
			}
			if journal != nil && notificationID != "" {
				if err := journal.InsertActionEvent(notificationID, result, now); err != nil {
					log.Warn("journal insert failed", "error", err)
				}
			}
		}
	}
	return scanner.Err()
}

// pruneRecent drops entries older than the TTL so the recent-events map
// stays bounded over long sessions.
func pruneRecent(recent map[string]time.Time, now time.Time, ttl time.Duration) {
	for name, ts := range recent {
		if now.Sub(ts) > ttl {
			delete(recent, name)
		}
	}
}
