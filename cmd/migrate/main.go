package main

import (
	"flag"
	"fmt"
	"log"

	"switchboard/internal/platform/config"
	"switchboard/internal/platform/database"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down or version")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch *direction {
	case "up":
		err = database.Migrate(db)
	case "down":
		err = database.Rollback(db)
	case "version":
		var v int64
		if v, err = database.Version(db); err == nil {
			fmt.Printf("Schema version: %d\n", v)
			return
		}
	default:
		log.Fatal("Invalid direction: must be 'up', 'down' or 'version'")
	}
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Migration completed successfully")
}
