package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/repository/postgres"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: go run cmd/create-user/main.go <email> <name> <password> [--admin]")
		fmt.Println("Example: go run cmd/create-user/main.go ops@example.com \"Ops Admin\" \"s3cret\" --admin")
		os.Exit(1)
	}

	email := os.Args[1]
	name := os.Args[2]
	password := os.Args[3]
	isAdmin := len(os.Args) > 4 && os.Args[4] == "--admin"

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Hash the password
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	// Create repositories
	repos := postgres.NewRepositories(db, logger)

	user := &domain.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(passwordHash),
		IsAdmin:      isAdmin,
	}

	if err := repos.User.Create(context.Background(), user); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User created successfully!\n\n")
	fmt.Printf("User ID: %s\n", user.ID.String())
	fmt.Printf("Email: %s\n", user.Email)
	fmt.Printf("Admin: %v\n", user.IsAdmin)
}
