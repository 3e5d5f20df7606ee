package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/logging"
	"github.com/lavraseats/lavraseats/models"
	"github.com/lavraseats/lavraseats/store"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg := config.LoadConfig()
	logging.Setup("createadmin", cfg.Log)

	if cfg.Auth.AdminEmail == "" || cfg.Auth.AdminPassword == "" || cfg.Auth.AdminCPF == "" {
		log.Fatal("auth.adminEmail, auth.adminCPF and auth.adminPassword are required")
	}

	ctx := context.Background()

	pg, err := store.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Auth.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal(err)
	}

	created, err := pg.EnsureManager(ctx, &models.User{
		Name:         cfg.Auth.AdminName,
		Email:        cfg.Auth.AdminEmail,
		CPF:          cfg.Auth.AdminCPF,
		PasswordHash: string(hash),
	})
	if err != nil {
		log.Fatal(err)
	}

	if created {
		slog.Info("manager account created", "email", cfg.Auth.AdminEmail)
	} else {
		slog.Info("manager account already exists", "email", cfg.Auth.AdminEmail)
	}
}
