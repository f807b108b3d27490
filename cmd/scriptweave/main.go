package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/driftline/scriptweave/internal/config"
	"github.com/driftline/scriptweave/internal/conversation"
	"github.com/driftline/scriptweave/internal/examples"
	"github.com/driftline/scriptweave/internal/jobs"
	"github.com/driftline/scriptweave/internal/llm"
	"github.com/driftline/scriptweave/internal/metrics"
	"github.com/driftline/scriptweave/internal/orchestrator"
	"github.com/driftline/scriptweave/internal/policy"
	"github.com/driftline/scriptweave/internal/session"
	"github.com/driftline/scriptweave/pkg/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath   string
	envFile      string
	verbose      bool
	regenConvID  string
	regenSection string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scriptweave",
		Short: "ScriptWeave - streaming hypnosis script generator",
		Long: `ScriptWeave generates long-form hypnosis scripts with an LLM: one outline
pass, then each section in order, regenerating any section that comes out
below the configured word count.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	runCmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Generate a full script from a prompt",
		Long: `Generate a complete script:
1. Stream an outline for the prompt
2. Stream each outlined section in order
3. Regenerate sections below the minimum word count (within policy limits)
4. Export the finished script to the session directory`,
		Args: cobra.MinimumNArgs(1),
		RunE: runGeneration,
	}

	regenCmd := &cobra.Command{
		Use:   "regen",
		Short: "Manually regenerate one section of an existing script",
		Long: `Queue and run a manual regeneration for one section. Manual requests
bypass the cooldown and attempt limits.`,
		RunE: runManualRegeneration,
	}
	regenCmd.Flags().StringVar(&regenConvID, "conversation", "", "Conversation ID (see 'conversation list')")
	regenCmd.Flags().StringVar(&regenSection, "section", "", "Section title to regenerate")
	_ = regenCmd.MarkFlagRequired("conversation")
	_ = regenCmd.MarkFlagRequired("section")

	conversationCmd := &cobra.Command{
		Use:   "conversation",
		Short: "Inspect stored conversations",
	}
	conversationCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all stored conversations",
			RunE:  listConversations,
		},
		&cobra.Command{
			Use:   "show <conversation-id>",
			Short: "Show the assembled script for a conversation",
			Args:  cobra.ExactArgs(1),
			RunE:  showConversation,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Migrate legacy single-blob storage to per-conversation records",
			Long:  "Opening the store migrates any legacy blob automatically; this command does only that and reports the result.",
			RunE:  migrateConversations,
		},
	)

	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the shared job queue",
	}
	jobsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List queued, running, and finished jobs",
			RunE:  listJobs,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove completed and failed jobs from the queue",
			RunE:  clearJobs,
		},
	)

	rootCmd.AddCommand(runCmd, regenCmd, conversationCmd, jobsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to built-in defaults (mock
// provider, local data directory) when no file exists.
func loadConfig() (*config.Config, *config.Secrets, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		secrets, err := config.LoadSecrets()
		if err != nil {
			return nil, nil, err
		}
		return config.Default(), secrets, nil
	}
	return config.Load(configPath)
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func stderrLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))
}

// core holds the collaborators every command needs
type core struct {
	cfg    *config.Config
	store  *conversation.Store
	queue  *jobs.FileQueue
	engine *policy.Engine
	logger *slog.Logger
}

func buildCore(cfg *config.Config, logger *slog.Logger) (*core, error) {
	kv, err := conversation.NewFileKV(filepath.Join(cfg.Generation.DataDir, "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	store, err := conversation.NewStore(kv, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	queue, err := jobs.NewFileQueue(filepath.Join(cfg.Generation.DataDir, "jobs.json"), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open job queue: %w", err)
	}
	engine, err := policy.NewEngine(policy.Rules{
		MinimumWordCount:            cfg.Generation.MinimumWordCount,
		MaxAutoRegenerationAttempts: cfg.Generation.MaxAutoRegenerationAttempts,
		RegenerationCooldown:        cfg.Generation.RegenerationCooldown(),
	}, queue, kv, logger)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("failed to load policy state: %w", err)
	}
	return &core{cfg: cfg, store: store, queue: queue, engine: engine, logger: logger}, nil
}

func runGeneration(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")

	cfg, secrets, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sessionMgr, err := session.NewManager(filepath.Join(cfg.Generation.DataDir, "sessions"), "", stderrLogger())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	logger, logFile, err := session.SetupLogger(sessionMgr, logLevel())
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		_ = logFile.Sync()
		_ = logFile.Close()
	}()

	logger.Info("ScriptWeave starting",
		"version", Version,
		"provider", cfg.Generation.Provider,
		"session_dir", sessionMgr.Dir())

	if _, err := os.Stat(configPath); err == nil {
		if err := sessionMgr.BackupConfig(configPath); err != nil {
			logger.Warn("Failed to back up config", "error", err)
		}
	}

	if cfg.Metrics.Enabled {
		go metrics.Serve(cfg.Metrics.Listen, logger)
	}

	c, err := buildCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.queue.Close()

	generator, err := llm.New(cfg, secrets, logger)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(logger)
	c.store.SetSaveHook(collector.RecordConversationSave)
	library := examples.Load(cfg.Generation.ExamplesDir, logger)
	coord := newCoordinator(c.engine, c.queue, collector, logger)
	orch := orchestrator.New(cfg, generator, c.store, library, newProgressRenderer(), coord, collector, logger)

	stats := &models.SessionStats{StartTime: time.Now()}
	worker := newConsumer(c.queue, orch, coord, stats, logger)
	worker.StopWhenIdle()

	conv, err := c.store.Create(uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	if _, err := c.queue.Enqueue(models.Job{
		Type:           models.JobTypeGenerateScript,
		ScriptID:       conv.ScriptID,
		Prompt:         prompt,
		ConversationID: conv.ID,
	}); err != nil {
		return fmt.Errorf("failed to enqueue generation: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })
	if err := g.Wait(); err != nil {
		if err == context.Canceled {
			logger.Warn("Generation interrupted", "conversation_id", conv.ID)
			return fmt.Errorf("generation interrupted")
		}
		return fmt.Errorf("generation failed: %w", err)
	}

	stored, ok := c.store.Get(conv.ID)
	if !ok {
		return fmt.Errorf("conversation %s disappeared from store", conv.ID)
	}
	assembled := orchestrator.AssembleDocument(stored)
	if err := sessionMgr.WriteScript(assembled.Raw); err != nil {
		return err
	}

	stats.EndTime = time.Now()
	stats.TotalDuration = stats.EndTime.Sub(stats.StartTime)
	stats.TotalSections = len(assembled.Sections)
	if stats.TotalSections > 0 {
		stats.AverageDuration = stats.TotalDuration / time.Duration(stats.TotalSections)
	}

	logger.Info("Generation complete",
		"conversation_id", conv.ID,
		"sections", stats.TotalSections,
		"total_words", assembled.TotalWordCount,
		"regenerations", stats.RegenCount,
		"failed_jobs", stats.FailureCount,
		"duration", stats.TotalDuration,
		"script", sessionMgr.ScriptPath())
	return nil
}

func runManualRegeneration(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := stderrLogger()

	c, err := buildCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.queue.Close()

	stored, ok := c.store.Get(regenConvID)
	if !ok {
		return fmt.Errorf("conversation not found: %s", regenConvID)
	}
	assembled := orchestrator.AssembleDocument(stored)
	section, ok := sectionByTitle(assembled.Document, regenSection)
	if !ok {
		return fmt.Errorf("section %q not found in script (have: %s)", regenSection, sectionTitles(assembled))
	}

	generator, err := llm.New(cfg, secrets, logger)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(logger)
	library := examples.Load(cfg.Generation.ExamplesDir, logger)
	coord := newCoordinator(c.engine, c.queue, collector, logger)
	orch := orchestrator.New(cfg, generator, c.store, library, newProgressRenderer(), coord, collector, logger)

	if _, err := c.engine.RequestManualRegeneration(regenConvID, stored.ScriptID, section); err != nil {
		return err
	}
	collector.RecordRegeneration(true)

	stats := &models.SessionStats{StartTime: time.Now()}
	worker := newConsumer(c.queue, orch, coord, stats, logger)
	worker.StopWhenIdle()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := worker.Run(ctx); err != nil {
		if err == context.Canceled {
			return fmt.Errorf("regeneration interrupted")
		}
		return err
	}

	logger.Info("Manual regeneration finished", "conversation_id", regenConvID, "section", regenSection)
	return nil
}

func listConversations(cmd *cobra.Command, args []string) error {
	c, err := openCoreQuiet()
	if err != nil {
		return err
	}
	defer c.queue.Close()

	conversations := c.store.List()
	if len(conversations) == 0 {
		fmt.Println("No conversations stored.")
		return nil
	}
	for _, conv := range conversations {
		record := orchestrator.ScriptRecord(conv)
		length := record.DisplayLength
		if length == "" {
			length = "-"
		}
		fmt.Printf("%s  script=%s  status=%-11s  length=%-4s  generations=%d  updated=%s\n",
			conv.ID, conv.ScriptID, record.Status, length, len(conv.Generations), conv.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func showConversation(cmd *cobra.Command, args []string) error {
	c, err := openCoreQuiet()
	if err != nil {
		return err
	}
	defer c.queue.Close()

	stored, ok := c.store.Get(args[0])
	if !ok {
		return fmt.Errorf("conversation not found: %s", args[0])
	}
	record := orchestrator.ScriptRecord(stored)
	if record.Content == "" {
		fmt.Println("(no script content yet)")
		return nil
	}
	fmt.Fprintf(os.Stderr, "status=%s", record.Status)
	if record.DisplayLength != "" {
		fmt.Fprintf(os.Stderr, "  length=%s", record.DisplayLength)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Print(record.Content)
	return nil
}

func migrateConversations(cmd *cobra.Command, args []string) error {
	// NewStore performs the legacy migration as part of loading.
	c, err := openCoreQuiet()
	if err != nil {
		return err
	}
	defer c.queue.Close()

	fmt.Printf("Store ready: %d conversations in per-conversation format.\n", len(c.store.List()))
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	c, err := openCoreQuiet()
	if err != nil {
		return err
	}
	defer c.queue.Close()

	queue, err := c.queue.List()
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}
	for _, job := range queue {
		target := job.ScriptID
		if job.SectionTitle != "" {
			target += " / " + job.SectionTitle
		}
		fmt.Printf("%s  %-20s %-10s %s\n", job.ID, job.Type, job.Status, target)
	}
	return nil
}

func clearJobs(cmd *cobra.Command, args []string) error {
	c, err := openCoreQuiet()
	if err != nil {
		return err
	}
	defer c.queue.Close()

	queue, err := c.queue.List()
	if err != nil {
		return err
	}
	removed := 0
	for _, job := range queue {
		if job.Active() {
			continue
		}
		if err := c.queue.Remove(job.ID); err != nil {
			return err
		}
		removed++
	}
	fmt.Printf("Removed %d finished jobs.\n", removed)
	return nil
}

func openCoreQuiet() (*core, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return buildCore(cfg, stderrLogger())
}

func sectionTitles(assembled orchestrator.AssembledScript) string {
	titles := make([]string, len(assembled.Sections))
	for i, s := range assembled.Sections {
		titles[i] = s.Title
	}
	return strings.Join(titles, ", ")
}

// loadEnvFile loads KEY=VALUE pairs into the environment
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if err := os.Setenv(strings.TrimSpace(key), value); err != nil {
			return err
		}
	}
	return nil
}
