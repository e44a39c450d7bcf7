package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/example/collab-tracker/domain/message"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func storeMessage(t *testing.T, repo *Repository, sender string, channel, recipient *string, at time.Time) *message.Message {
	t.Helper()
	msg := &message.Message{
		ID:          uuid.New().String(),
		Content:     "hello",
		SenderID:    sender,
		Channel:     channel,
		RecipientID: recipient,
		ReadBy:      []message.ReadReceipt{{UserID: sender, ReadAt: at}},
		Version:     1,
		CreatedAt:   at,
	}
	if err := repo.Create(context.Background(), msg); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return msg
}

func TestRepository_UpdateIfVersion(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	msg := storeMessage(t, repo, "A", strPtr("general"), nil, time.Now())

	msg.Reactions = []message.Reaction{{Emoji: "👍", Users: []string{"B"}}}
	if err := repo.UpdateIfVersion(ctx, msg, 1, "reactions"); err != nil {
		t.Fatalf("UpdateIfVersion() error = %v", err)
	}
	if msg.Version != 2 {
		t.Errorf("Version = %d, want 2", msg.Version)
	}

	stored, err := repo.FindByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if len(stored.Reactions) != 1 || stored.Reactions[0].Users[0] != "B" {
		t.Errorf("Reactions = %+v, want one reaction by B", stored.Reactions)
	}

	err = repo.UpdateIfVersion(ctx, stored, 1, "reactions")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateIfVersion() with stale version error = %v, want ErrConflict", err)
	}

	stored.ID = "missing"
	err = repo.UpdateIfVersion(ctx, stored, 2, "reactions")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateIfVersion() on missing message error = %v, want ErrNotFound", err)
	}
}

func TestRepository_SoftDelete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	msg := storeMessage(t, repo, "A", nil, strPtr("B"), time.Now())

	if err := repo.SoftDelete(ctx, msg.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	if _, err := repo.FindByID(ctx, msg.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("FindByID() after delete error = %v, want ErrNotFound", err)
	}

	direct, err := repo.DirectFor(ctx, "B")
	if err != nil {
		t.Fatalf("DirectFor() error = %v", err)
	}
	if len(direct) != 0 {
		t.Errorf("DirectFor() returned %d messages, want 0", len(direct))
	}
}

func TestRepository_History(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		storeMessage(t, repo, "A", strPtr("general"), nil, base.Add(time.Duration(i)*time.Minute))
	}
	storeMessage(t, repo, "A", strPtr("random"), nil, base)
	storeMessage(t, repo, "A", nil, strPtr("B"), base)
	storeMessage(t, repo, "B", nil, strPtr("A"), base.Add(time.Minute))
	storeMessage(t, repo, "C", nil, strPtr("A"), base)

	tests := []struct {
		name  string
		query func() ([]message.Message, error)
		want  int
	}{
		{
			name:  "channel history",
			query: func() ([]message.Message, error) { return repo.ChannelHistory(ctx, "general", Page{}) },
			want:  5,
		},
		{
			name:  "channel history limited",
			query: func() ([]message.Message, error) { return repo.ChannelHistory(ctx, "general", Page{Limit: 2}) },
			want:  2,
		},
		{
			name: "channel history before",
			query: func() ([]message.Message, error) {
				return repo.ChannelHistory(ctx, "general", Page{Before: base.Add(2 * time.Minute)})
			},
			want: 2,
		},
		{
			name:  "direct history both directions",
			query: func() ([]message.Message, error) { return repo.DirectHistory(ctx, "A", "B", Page{}) },
			want:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := tt.query()
			if err != nil {
				t.Fatalf("query error = %v", err)
			}
			if len(msgs) != tt.want {
				t.Errorf("got %d messages, want %d", len(msgs), tt.want)
			}
			for i := 1; i < len(msgs); i++ {
				if msgs[i].CreatedAt.After(msgs[i-1].CreatedAt) {
					t.Errorf("messages not ordered newest first at index %d", i)
				}
			}
		})
	}
}

func TestRepository_InboundFor(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	storeMessage(t, repo, "A", strPtr("general"), nil, now)
	storeMessage(t, repo, "B", strPtr("general"), nil, now)
	storeMessage(t, repo, "A", strPtr("random"), nil, now)
	storeMessage(t, repo, "A", nil, strPtr("B"), now)
	storeMessage(t, repo, "A", nil, strPtr("C"), now)

	msgs, err := repo.InboundFor(ctx, "B", []string{"general"})
	if err != nil {
		t.Fatalf("InboundFor() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("InboundFor() returned %d messages, want 2", len(msgs))
	}

	msgs, err = repo.InboundFor(ctx, "B", nil)
	if err != nil {
		t.Fatalf("InboundFor() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("InboundFor() without channels returned %d messages, want 1", len(msgs))
	}
}

func TestRepository_Membership(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	for _, step := range []struct{ channel, user string }{
		{"general", "A"},
		{"general", "A"},
		{"general", "B"},
		{"random", "A"},
	} {
		if err := repo.JoinChannel(ctx, step.channel, step.user); err != nil {
			t.Fatalf("JoinChannel(%s, %s) error = %v", step.channel, step.user, err)
		}
	}

	channels, err := repo.ChannelsOf(ctx, "A")
	if err != nil {
		t.Fatalf("ChannelsOf() error = %v", err)
	}
	if len(channels) != 2 || channels[0] != "general" || channels[1] != "random" {
		t.Errorf("ChannelsOf(A) = %v, want [general random]", channels)
	}

	members, err := repo.MembersOf(ctx, "general")
	if err != nil {
		t.Fatalf("MembersOf() error = %v", err)
	}
	if len(members) != 2 {
		t.Errorf("MembersOf(general) = %v, want 2 members", members)
	}

	if err := repo.LeaveChannel(ctx, "general", "A"); err != nil {
		t.Fatalf("LeaveChannel() error = %v", err)
	}
	if err := repo.LeaveChannel(ctx, "general", "A"); err != nil {
		t.Fatalf("second LeaveChannel() error = %v", err)
	}
	channels, _ = repo.ChannelsOf(ctx, "A")
	if len(channels) != 1 {
		t.Errorf("ChannelsOf(A) after leave = %v, want [random]", channels)
	}
}
