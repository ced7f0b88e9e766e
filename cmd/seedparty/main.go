// seedparty registers a contact for a marketplace party and prints a signed
// access token for it, for local testing without the identity provider.
//
//	go run ./cmd/seedparty -role miller -name "Shree Mill" -phone 9876500001
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"sarnabroker/internal/config"
	"sarnabroker/internal/dto"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/middleware"
	"sarnabroker/internal/repository"
	"sarnabroker/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	role := flag.String("role", service.RoleBuyer, "miller | buyer | admin | farmer")
	name := flag.String("name", "", "display name")
	phone := flag.String("phone", "", "mobile number")
	email := flag.String("email", "", "optional email for statements")
	userID := flag.String("user", "", "existing user id (default: new uuid)")
	owner := flag.String("owner", "", "parent miller id, makes this a staff account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	id := uuid.New()
	if *userID != "" {
		if id, err = uuid.Parse(*userID); err != nil {
			log.Fatal().Err(err).Msg("invalid -user")
		}
	}
	claims := middleware.JWTClaims{UserID: id.String(), Role: *role}
	if *owner != "" {
		if _, err := uuid.Parse(*owner); err != nil {
			log.Fatal().Err(err).Msg("invalid -owner")
		}
		claims.IsStaff = true
		claims.OwnerID = *owner
	}
	actor, err := claims.Actor()
	if err != nil {
		log.Fatal().Err(err).Msg("identity")
	}

	if *phone != "" {
		db, err := infra.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("ledger store")
		}
		contacts := service.NewContactService(repository.NewContactRepository(db), cfg.PhoneRegion)
		req := dto.UpsertContactRequest{Name: *name, Phone: *phone}
		if *email != "" {
			req.Email = email
		}
		if req.Name == "" {
			req.Name = *role
		}
		if _, err := contacts.Upsert(context.Background(), actor, req); err != nil {
			log.Fatal().Err(err).Msg("contact upsert")
		}
	}

	token, err := middleware.SignToken(cfg.JWTSecret, claims, time.Duration(cfg.JWTExpirationHours)*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("sign token")
	}
	fmt.Printf("user_id: %s\nrole:    %s\ntoken:   %s\n", id, *role, token)
}
