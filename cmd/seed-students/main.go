package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/logger"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/service"
)

func main() {
	count := flag.Int("count", 50, "number of student accounts to create")
	domain := flag.String("domain", "students.exstem.test", "email domain for seeded accounts")
	password := flag.String("password", "password123", "password for every seeded account")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	authService := service.NewAuthService(cfg, nil, repository.NewUserRepository(pool))

	fmt.Printf("=== Seeding %d Students ===\n", *count)

	created, skipped := 0, 0
	for i := 1; i <= *count; i++ {
		email := fmt.Sprintf("student%03d@%s", i, *domain)
		name := fmt.Sprintf("Student %03d", i)

		_, err := authService.CreateUser(ctx, email, name, *password, model.RoleStudent)
		switch {
		case err == nil:
			created++
		case errors.Is(err, service.ErrEmailTaken):
			skipped++
		default:
			log.Fatal().Err(err).Str("email", email).Msg("Failed to create student")
		}
	}

	log.Info().Int("created", created).Int("skipped", skipped).Msg("Seeding complete")
}
