package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/rentfolio/escrow-ledger/internal/db"
	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/models"
)

func init() {
	_ = godotenv.Load("../../.env") // Load from root
}

func TestCreateAndGetUser(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	pool, err := db.Connect(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	repo := NewRepository(pool)
	ctx := context.Background()

	userID := uuid.New()
	user := &models.User{
		ID:       userID,
		Username: "tenant_" + userID.String()[:8],
		Email:    "tenant_" + userID.String()[:8] + "@example.com",
		Role:     domain.RoleTenant,
	}

	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	dbUser, err := repo.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if dbUser.ID != user.ID {
		t.Errorf("Expected user ID %s, got %s", user.ID, dbUser.ID)
	}
	if dbUser.Role != domain.RoleTenant {
		t.Errorf("Expected role %s, got %s", domain.RoleTenant, dbUser.Role)
	}

	byName, err := repo.GetUserByUsername(ctx, user.Username)
	if err != nil {
		t.Fatalf("Failed to get user by username: %v", err)
	}
	if byName.ID != user.ID {
		t.Errorf("Expected user ID %s, got %s", user.ID, byName.ID)
	}
}
