package main

import (
	"flag"
	"log"

	"quantfolio/internal/config"
	"quantfolio/internal/storage"
)

func main() {
	var (
		configFile = flag.String("config", "configs/config.yaml", "configuration file path")
		source     = flag.String("source", "file://migrations", "migration source URL")
		down       = flag.Bool("down", false, "roll back the most recent migration")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := storage.NewConnection(&storage.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxOpen:  cfg.Database.MaxOpen,
		MaxIdle:  cfg.Database.MaxIdle,
		Timeout:  cfg.Database.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db, *source)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}

	if *down {
		if err := migrator.Down(); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Rolled back one migration")
	} else {
		if err := migrator.Up(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations applied")
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	log.Printf("Schema version: %d (dirty: %v)", version, dirty)
}
