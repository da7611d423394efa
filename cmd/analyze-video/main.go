package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/clipsight/clipsight/internal/ai"
	"github.com/clipsight/clipsight/internal/database"
	"github.com/clipsight/clipsight/internal/storage"
)

// analyze-video runs the full analysis pass for one stored video: sample
// frames, caption them, detect objects, transcribe the audio, and persist
// everything the chat engine reads.
func main() {
	var (
		videoID   = flag.String("video", "", "ID of the video to analyze")
		dbPath    = flag.String("db", "./clipsight.db", "SQLite database path")
		uploadDir = flag.String("uploads", "./uploads", "Upload directory")
		interval  = flag.Float64("interval", ai.DefaultFrameInterval, "Seconds between sampled frames")
		frameSize = flag.Int("size", ai.DefaultFrameSize, "Frame width in pixels")
	)
	flag.Parse()

	if *videoID == "" {
		log.Fatal("-video is required")
	}

	db, err := database.NewDB(database.Config{Type: "sqlite", SQLitePath: *dbPath})
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	store, err := storage.NewLocalStorage(*uploadDir)
	if err != nil {
		log.Fatal("Failed to open storage:", err)
	}

	ctx := context.Background()
	videos := database.NewVideoRepository(db)
	video, err := videos.GetVideoByID(ctx, *videoID)
	if err != nil {
		log.Fatal("Failed to load video:", err)
	}

	aiConfig := ai.ConfigFromEnv()
	if aiConfig.APIKey == "" {
		log.Fatal("OPENAI_API_KEY is required for analysis")
	}
	client := ai.NewOpenAIClient(aiConfig)

	extractor, err := ai.NewFrameExtractor()
	if err != nil {
		log.Fatal("Failed to initialize frame extractor:", err)
	}

	pipeline := ai.NewPipeline(db, store, *uploadDir, client, extractor)
	pipeline.Interval = *interval
	pipeline.Size = *frameSize

	if err := pipeline.AnalyzeVideo(ctx, video); err != nil {
		log.Fatal("Analysis failed:", err)
	}
	fmt.Println("Analysis complete.")
}
