package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/clipsight/clipsight/internal/aggregate"
	"github.com/clipsight/clipsight/internal/ai"
	"github.com/clipsight/clipsight/internal/api"
	"github.com/clipsight/clipsight/internal/cache"
	"github.com/clipsight/clipsight/internal/database"
	"github.com/clipsight/clipsight/internal/logging"
	"github.com/clipsight/clipsight/internal/memory"
	"github.com/clipsight/clipsight/internal/models"
	"github.com/clipsight/clipsight/internal/orchestrator"
	"github.com/clipsight/clipsight/internal/planner"
	"github.com/clipsight/clipsight/internal/search"
	"github.com/clipsight/clipsight/internal/storage"
)

func main() {
	defer logging.Sync()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "./uploads"
	}

	dbConfig := databaseConfigFromEnv()

	localStorage, err := storage.NewLocalStorage(uploadDir)
	if err != nil {
		logging.Error("failed to initialize storage", zap.Error(err))
		os.Exit(1)
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		logging.Error("failed to initialize database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "./migrations"
	}
	if err := db.RunMigrations(migrationsPath); err != nil {
		logging.Error("failed to run migrations", zap.Error(err))
		os.Exit(1)
	}

	videoRepo := database.NewVideoRepository(db)
	frameRepo := database.NewFrameRepo(db)
	captionRepo := database.NewCaptionRepo(db)
	transcriptRepo := database.NewTranscriptRepo(db)
	detectionRepo := database.NewDetectionRepo(db)
	mem := memory.NewStore(database.NewConversationRepo(db))

	agg := aggregate.NewAggregator(videoRepo, frameRepo, captionRepo, transcriptRepo, detectionRepo, mem)

	aiConfig := ai.ConfigFromEnv()
	if aiConfig.APIKey == "" {
		logging.Warn("OPENAI_API_KEY not set, answer generation will fail")
	}
	client := ai.NewOpenAIClient(aiConfig)

	relevanceCache := cache.New(
		cache.WithTTL(envDuration("CACHE_TTL", cache.DefaultTTL)),
		cache.WithMaxEntries(envInt("CACHE_MAX_ENTRIES", cache.DefaultMaxEntries)),
	)

	opts := []orchestrator.Option{
		orchestrator.WithCache(relevanceCache),
	}
	if os.Getenv("EMBEDDINGS_ENABLED") == "true" {
		embedder := search.NewOpenAIEmbedder(aiConfig.BaseURL, aiConfig.APIKey, os.Getenv("EMBED_MODEL"), 0)
		index := search.NewVectorIndex(embedder)
		index.SetModelVersion(envString("EMBED_MODEL", "text-embedding-3-small"))
		seedIndex(index, videoRepo, captionRepo, transcriptRepo)
		opts = append(opts, orchestrator.WithSearcher(
			search.NewHybrid(agg, index, search.DefaultSemanticWeight)))
		logging.Info("hybrid search enabled", zap.Int("indexed", index.Size()))
	}

	// Videos nobody analyzed yet get their tools run during the first
	// chat turn, when ffmpeg and an API key are present.
	if aiConfig.APIKey != "" {
		if extractor, err := ai.NewFrameExtractor(); err != nil {
			logging.Warn("on-demand analysis disabled", zap.Error(err))
		} else {
			pipeline := ai.NewPipeline(db, localStorage, uploadDir, client, extractor)
			opts = append(opts, orchestrator.WithAnalyzer(pipeline))
		}
	}

	orch := orchestrator.New(videoRepo, agg, mem, client, opts...)

	app := &api.App{
		Orchestrator: orch,
		Planner:      planner.New(),
		Memory:       mem,
		VideoRepo:    videoRepo,
		FrameRepo:    frameRepo,
		Storage:      localStorage,
		Cache:        relevanceCache,
	}

	logging.Info("server listening", zap.String("port", port), zap.String("db", dbConfig.Type))
	if err := http.ListenAndServe(":"+port, api.NewRouter(app)); err != nil {
		logging.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

// seedIndex loads existing captions and transcripts into the semantic index
// at startup. Indexing failures are logged and skipped; lexical search still
// covers those videos.
func seedIndex(index *search.VectorIndex, videos *database.VideoRepository, captions *database.CaptionRepo, transcripts *database.TranscriptRepo) {
	ctx := context.Background()
	list, err := videos.ListVideos(ctx)
	if err != nil {
		logging.Warn("listing videos for index seed failed", zap.Error(err))
		return
	}

	for _, v := range list {
		var docs []search.Document

		caps, err := captions.ListByVideo(ctx, v.ID)
		if err != nil {
			logging.Warn("loading captions for index seed failed",
				zap.String("video_id", v.ID), zap.Error(err))
			continue
		}
		for _, c := range caps {
			docs = append(docs, search.Document{
				ID:        fmt.Sprintf("cap:%s:%.1f", c.VideoID, c.Timestamp),
				Text:      c.Text,
				VideoID:   c.VideoID,
				Timestamp: c.Timestamp,
				Source:    models.SourceCaptions,
			})
		}

		segs, err := transcripts.ListByVideo(ctx, v.ID)
		if err != nil {
			logging.Warn("loading transcripts for index seed failed",
				zap.String("video_id", v.ID), zap.Error(err))
			continue
		}
		for _, s := range segs {
			docs = append(docs, search.Document{
				ID:        fmt.Sprintf("seg:%s:%.1f", s.VideoID, s.Start),
				Text:      s.Text,
				VideoID:   s.VideoID,
				Timestamp: s.Start,
				Source:    models.SourceTranscripts,
			})
		}

		if err := index.Add(ctx, docs); err != nil {
			logging.Warn("seeding semantic index failed",
				zap.String("video_id", v.ID), zap.Error(err))
		}
	}
}

func databaseConfigFromEnv() database.Config {
	dbType := os.Getenv("DB_TYPE")
	if dbType == "" {
		dbType = "sqlite"
	}

	config := database.Config{Type: dbType}
	if dbType == "postgres" {
		config.Host = envString("DB_HOST", "localhost")
		config.Port = envInt("DB_PORT", 5432)
		config.User = envString("DB_USER", "clipsight")
		config.Password = envString("DB_PASSWORD", "clipsight_dev")
		config.Name = envString("DB_NAME", "clipsight")
	} else {
		config.SQLitePath = envString("DB_PATH", "./clipsight.db")
	}
	return config
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
