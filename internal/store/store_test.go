package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "teams.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTeamRoundTrip(t *testing.T) {
	s := openTestStore(t)

	team := Team{
		ID:          "T001",
		Name:        "Acme",
		BotToken:    "xoxb-acme",
		BotUserID:   "U0BOT",
		BotUserName: "buttonbot",
		CreatedBy:   "U0ADMIN",
	}
	if err := s.SaveTeam(team); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTeam("T001")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Acme" || got.BotToken != "xoxb-acme" || got.CreatedBy != "U0ADMIN" {
		t.Fatalf("unexpected team %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps should be set by the database")
	}
	if !got.HasBot() {
		t.Fatal("team with token and bot user should report HasBot")
	}
}

func TestSaveTeamUpserts(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveTeam(Team{ID: "T001", Name: "Before", BotToken: "xoxb-old"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTeam(Team{ID: "T001", Name: "After", BotToken: "xoxb-new", BotUserID: "U0BOT"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTeam("T001")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "After" || got.BotToken != "xoxb-new" {
		t.Fatalf("upsert did not replace fields: %+v", got)
	}

	teams, err := s.AllTeams()
	if err != nil {
		t.Fatal(err)
	}
	if len(teams) != 1 {
		t.Fatalf("expected 1 team after upsert, got %d", len(teams))
	}
}

func TestSaveTeamRequiresID(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveTeam(Team{Name: "nameless"}); err == nil {
		t.Fatal("expected error for empty team id")
	}
}

func TestGetTeamByToken(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveTeam(Team{ID: "T001", BotToken: "xoxb-1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTeam(Team{ID: "T002", BotToken: "xoxb-2"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTeamByToken("xoxb-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "T002" {
		t.Fatalf("got team %s, want T002", got.ID)
	}

	if _, err := s.GetTeamByToken("xoxb-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveTeam(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveTeam(Team{ID: "T001", BotToken: "xoxb-1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveTeam("T001"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTeam("T001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
	if err := s.RemoveTeam("T404"); err != nil {
		t.Fatalf("removing an absent team should be a no-op, got %v", err)
	}
}

func TestUserRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetUser("U1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}

	if err := s.SaveUser(User{ID: "U1", Name: "jose"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveUser(User{ID: "U1", Name: "josé"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetUser("U1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "josé" {
		t.Fatalf("user name = %q, want josé", got.Name)
	}
}

func TestHasBot(t *testing.T) {
	if (Team{BotToken: "xoxb-1"}).HasBot() {
		t.Fatal("token without bot user should not report HasBot")
	}
	if (Team{BotUserID: "U0"}).HasBot() {
		t.Fatal("bot user without token should not report HasBot")
	}
	if (Team{BotToken: "  ", BotUserID: "U0"}).HasBot() {
		t.Fatal("whitespace token should not report HasBot")
	}
}
