// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"limelight/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	NumUsers    int
	NumRooms    int
	ShouldClean bool
}

// Seeder populates the database with demo users, follow edges, rooms in mixed
// lifecycle states and chat traffic.
type Seeder struct {
	db   *gorm.DB
	rand *rand.Rand
}

// NewSeeder creates a Seeder bound to the provided DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:   db,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClearAll wipes every table this subsystem owns. Development use only.
func (s *Seeder) ClearAll() error {
	tables := []interface{}{
		&models.Report{},
		&models.ChatBan{},
		&models.HostBan{},
		&models.RoomMessage{},
		&models.Room{},
		&models.Follow{},
		&models.User{},
	}
	for _, table := range tables {
		if err := s.db.Where("1 = 1").Delete(table).Error; err != nil {
			return fmt.Errorf("clear table: %w", err)
		}
	}
	log.Println("Database cleared")
	return nil
}

// Run seeds the database according to the options.
func (s *Seeder) Run(opts Options) error {
	if opts.NumUsers <= 0 {
		opts.NumUsers = 20
	}
	if opts.NumRooms <= 0 {
		opts.NumRooms = 8
	}

	users, err := s.createUsers(opts.NumUsers)
	if err != nil {
		return err
	}
	if err := s.createFollows(users); err != nil {
		return err
	}
	rooms, err := s.createRooms(users, opts.NumRooms)
	if err != nil {
		return err
	}
	if err := s.createMessages(rooms, users); err != nil {
		return err
	}
	if err := s.createReports(rooms, users); err != nil {
		return err
	}

	log.Printf("Seeded %d users, %d rooms", len(users), len(rooms))
	return nil
}

func (s *Seeder) createUsers(n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n+1)

	admin := &models.User{Username: "admin", IsAdmin: true}
	if err := s.db.Create(admin).Error; err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	users = append(users, admin)

	seen := map[string]bool{"admin": true}
	for i := 0; i < n; i++ {
		username := strings.ToLower(gofakeit.Username())
		for seen[username] {
			username = fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), s.rand.Intn(1000))
		}
		seen[username] = true

		u := &models.User{Username: username}
		if err := s.db.Create(u).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Seeder) createFollows(users []*models.User) error {
	for _, follower := range users {
		// Each user follows a handful of others.
		for i := 0; i < 3; i++ {
			followee := users[s.rand.Intn(len(users))]
			if followee.ID == follower.ID {
				continue
			}
			follow := models.Follow{FollowerID: follower.ID, FolloweeID: followee.ID}
			if err := s.db.Where(&follow).FirstOrCreate(&follow).Error; err != nil {
				return fmt.Errorf("create follow: %w", err)
			}
		}
	}
	return nil
}

func (s *Seeder) createRooms(users []*models.User, n int) ([]*models.Room, error) {
	states := []models.RoomState{
		models.RoomStateWaiting,
		models.RoomStatePreview,
		models.RoomStateLive,
		models.RoomStateLive,
		models.RoomStateEnded,
	}

	rooms := make([]*models.Room, 0, n)
	for i := 0; i < n; i++ {
		host := users[s.rand.Intn(len(users))]
		state := states[s.rand.Intn(len(states))]

		room := &models.Room{
			HostID:           host.ID,
			Title:            gofakeit.Sentence(4),
			Description:      gofakeit.Paragraph(1, 2, 8, " "),
			State:            state,
			ModerationStatus: models.ModerationActive,
			PrivacyType:      models.PrivacyPublic,
			StreamKey:        uuid.NewString(),
		}
		if s.rand.Intn(4) == 0 {
			room.PrivacyType = models.PrivacyFollowOnly
		}

		if state != models.RoomStateWaiting && state != models.RoomStateEnded {
			manifest := fmt.Sprintf("http://localhost:8888/hls/%s/index.m3u8", uuid.NewString())
			room.ManifestRef = &manifest
		}
		if state == models.RoomStateLive || state == models.RoomStateEnded {
			started := time.Now().Add(-time.Duration(s.rand.Intn(180)) * time.Minute)
			room.StartedAt = &started
		}
		if state == models.RoomStateEnded {
			ended := time.Now().Add(-time.Duration(s.rand.Intn(60)) * time.Minute)
			room.EndedAt = &ended
		}

		if err := s.db.Create(room).Error; err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *Seeder) createMessages(rooms []*models.Room, users []*models.User) error {
	for _, room := range rooms {
		if room.State == models.RoomStateWaiting {
			continue
		}
		count := 5 + s.rand.Intn(20)
		var lastID *uint
		for i := 0; i < count; i++ {
			author := users[s.rand.Intn(len(users))]
			msg := &models.RoomMessage{
				RoomID:   room.ID,
				AuthorID: author.ID,
				Text:     gofakeit.HipsterSentence(6),
			}
			// Occasional reply to the previous message.
			if lastID != nil && s.rand.Intn(5) == 0 {
				msg.ParentID = lastID
			}
			if err := s.db.Create(msg).Error; err != nil {
				return fmt.Errorf("create message: %w", err)
			}
			lastID = &msg.ID
		}
	}
	return nil
}

func (s *Seeder) createReports(rooms []*models.Room, users []*models.User) error {
	reasons := []models.ReportReason{
		models.ReportReasonSpam,
		models.ReportReasonAbuse,
		models.ReportReasonOther,
	}
	for _, room := range rooms {
		if s.rand.Intn(3) != 0 {
			continue
		}
		report := &models.Report{
			RoomID:      room.ID,
			ReporterID:  users[s.rand.Intn(len(users))].ID,
			Reason:      reasons[s.rand.Intn(len(reasons))],
			Description: gofakeit.Sentence(8),
			Status:      models.ReportStatusPending,
		}
		if err := s.db.Create(report).Error; err != nil {
			return fmt.Errorf("create report: %w", err)
		}
	}
	return nil
}
