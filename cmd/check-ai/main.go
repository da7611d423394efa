package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// check-ai inspects a local database and reports how much analysis each
// video has, which is what the chat engine's availability checks will see.
func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./clipsight.db"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	fmt.Println("Analysis Coverage")
	fmt.Println("=================")

	if os.Getenv("OPENAI_API_KEY") == "" {
		fmt.Println("WARNING: OPENAI_API_KEY not set; captioning, detection, and answers are disabled")
		fmt.Println()
	}

	var videoCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM videos").Scan(&videoCount); err != nil {
		log.Fatal("Failed to count videos:", err)
	}
	fmt.Printf("Videos: %d\n\n", videoCount)

	rows, err := db.Query(`
		SELECT v.id, v.filename, v.status,
			(SELECT COUNT(*) FROM captions c WHERE c.video_id = v.id),
			(SELECT COUNT(*) FROM transcript_segments t WHERE t.video_id = v.id),
			(SELECT COUNT(*) FROM detections d WHERE d.video_id = v.id),
			(SELECT COUNT(*) FROM memory_records m WHERE m.video_id = v.id)
		FROM videos v ORDER BY v.upload_time`)
	if err != nil {
		log.Fatal("Failed to query videos:", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, filename, status string
		var captions, transcripts, detections, turns int
		if err := rows.Scan(&id, &filename, &status, &captions, &transcripts, &detections, &turns); err != nil {
			log.Fatal("Failed to scan row:", err)
		}

		fmt.Printf("%s (%s) [%s]\n", filename, id, status)
		fmt.Printf("  captions: %d  transcripts: %d  detections: %d  conversation turns: %d\n",
			captions, transcripts, detections, turns)

		var sources []string
		if captions > 0 {
			sources = append(sources, "captions")
		}
		if transcripts > 0 {
			sources = append(sources, "transcripts")
		}
		if detections > 0 {
			sources = append(sources, "objects")
		}
		if len(sources) == 0 {
			fmt.Println("  chat: no usable sources, questions will be refused")
		} else {
			fmt.Printf("  chat: usable sources %v\n", sources)
		}
		fmt.Println()
	}
	if err := rows.Err(); err != nil {
		log.Fatal("Failed to iterate rows:", err)
	}
}
