package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"scenecut-server/internal/api"
	"scenecut-server/internal/config"
	"scenecut-server/internal/database"
	"scenecut-server/internal/ffmpeg"
	"scenecut-server/internal/logging"
	"scenecut-server/internal/metrics"
	"scenecut-server/internal/processor"
	"scenecut-server/internal/queue"
	"scenecut-server/internal/scenedetect"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	verbose  bool
	jsonLogs bool
)

var dotEnvErr error

func main() {
	// .env must be loaded before config reads the environment
	dotEnvErr = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "scenecut",
	Short:        "scenecut - adaptive scene cut detection service",
	Long:         "Detects scene cuts in videos, stores scenes with thumbnails and serves them over HTTP.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose, jsonLogs)
		if dotEnvErr != nil {
			log.Debug().Msg("no .env file found, using environment variables")
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log JSON instead of console output")

	serveCmd.Flags().Bool("migrate", false, "run database migrations before serving")
	workerCmd.Flags().Int("concurrency", 1, "number of jobs processed in parallel")
	detectCmd.Flags().String("thumbnails", "", "directory for scene thumbnails (disabled when empty)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(detectCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		m := metrics.New()

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
			if err := db.AutoMigrate(); err != nil {
				return fmt.Errorf("failed to run auto-migration: %w", err)
			}
			log.Info().Msg("database migrations completed")
		}

		if err := os.MkdirAll(cfg.Server.UploadDir, 0755); err != nil {
			return fmt.Errorf("failed to create upload dir: %w", err)
		}

		vp, err := newProcessor(cfg, db, m)
		if err != nil {
			return err
		}

		opts := api.Options{
			Store:    db,
			Detector: vp,
			Metrics:  m,
			Server:   cfg.Server,
			Defaults: cfg.Detector,
			Logger:   log.Logger,
		}

		q, err := queue.NewQueue(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("job queue unavailable, detection runs inline")
		} else {
			defer q.Close()
			opts.Queue = q
		}

		return api.NewServer(opts).Run(ctx, ":"+cfg.Server.Port)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued scene detection jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		m := metrics.New()

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		q, err := queue.NewQueue(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer q.Close()

		vp, err := newProcessor(cfg, db, m)
		if err != nil {
			return err
		}

		concurrency, _ := cmd.Flags().GetInt("concurrency")
		return processor.NewWorker(q, vp, concurrency, log.Logger).Run(ctx)
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect [video file]",
	Short: "Detect scenes in a video and print them as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		sd, err := newSceneDetector(cfg, nil)
		if err != nil {
			return err
		}

		thumbs, _ := cmd.Flags().GetString("thumbnails")
		result, err := sd.DetectScenes(cmd.Context(), args[0], thumbs)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func openDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.NewConnection(cfg.Database, log.Logger)
	if err != nil {
		return nil, err
	}
	if err := db.Health(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("database connection established")
	return db, nil
}

func newSceneDetector(cfg *config.Config, m *metrics.Metrics) (*scenedetect.Detector, error) {
	client := ffmpeg.NewClient(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, log.Logger)
	sd, err := scenedetect.NewDetector(client, cfg.SceneDetectOptions(), log.Logger, m)
	if err != nil {
		return nil, err
	}
	if err := sd.CheckDependencies(); err != nil {
		return nil, err
	}
	return sd, nil
}

func newProcessor(cfg *config.Config, db *database.DB, m *metrics.Metrics) (*processor.VideoProcessor, error) {
	sd, err := newSceneDetector(cfg, m)
	if err != nil {
		return nil, err
	}
	thumbs := filepath.Join(cfg.Server.UploadDir, "thumbnails")
	return processor.NewVideoProcessor(db, processor.SceneDetectorFactory(sd), cfg.Detector, thumbs, log.Logger, m), nil
}
