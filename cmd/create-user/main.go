package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/logger"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/service"
	"golang.org/x/term"
)

func main() {
	roleFlag := flag.String("role", "student", "account role: student or faculty")
	flag.Parse()

	role, err := parseRole(*roleFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.SetupWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	// Only CreateUser is used, which needs no Redis.
	authService := service.NewAuthService(cfg, nil, repository.NewUserRepository(pool))

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("=== Create New Account (%s) ===\n", role)

	name := prompt(reader, "Enter Name: ")
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	email := prompt(reader, "Enter Email: ")
	if email == "" || !strings.Contains(email, "@") {
		fmt.Println("Error: A valid email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after password input
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	password := string(bytePassword)
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	user, err := authService.CreateUser(ctx, email, name, password, role)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			fmt.Printf("Error: %s is already registered\n", email)
			return
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s' (%s) created with ID: %d\n", user.Role, user.Name, user.Email, user.ID)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func parseRole(s string) (model.Role, error) {
	switch model.Role(strings.ToUpper(strings.TrimSpace(s))) {
	case model.RoleStudent:
		return model.RoleStudent, nil
	case model.RoleFaculty:
		return model.RoleFaculty, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}
