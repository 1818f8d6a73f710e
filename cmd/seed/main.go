// Command main runs the database seeder for Limelight.
package main

import (
	"flag"
	"log"

	"limelight/internal/config"
	"limelight/internal/database"
	"limelight/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numRooms := flag.Int("rooms", 8, "Number of rooms to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db)
	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if err := s.Run(seed.Options{NumUsers: *numUsers, NumRooms: *numRooms}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Println("Seeding complete")
}
