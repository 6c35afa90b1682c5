// sharegate-admin manages bearer tokens directly against the database,
// without a running server. Its main job is bootstrapping the first
// admin token of a deployment.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"sharegate/pkg/auth"
	"sharegate/pkg/log"
	"sharegate/pkg/models"
	"sharegate/pkg/permission"
	"sharegate/pkg/storage"
)

func main() {
	_ = log.Logger

	dbPath := flag.String("db", "sharegate.db", "SQLite database path")
	name := flag.String("name", "", "Token name (for create)")
	class := flag.String("class", "admin", "Token class: user, api, or admin")
	perms := flag.String("permissions", "", "Comma-separated permissions (empty = class defaults)")
	expiresHours := flag.Int64("expires-hours", 0, "Token lifetime in hours (0 = never)")
	maxUsage := flag.Int64("max-usage", 0, "Maximum validations (0 = unlimited)")
	revoke := flag.String("revoke", "", "Token id to revoke")
	list := flag.Bool("list", false, "List tokens")
	flag.Parse()

	db, err := storage.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open database")
	}
	defer func() { _ = db.Close() }()

	manager := auth.NewManager(db)

	switch {
	case *list:
		listTokens(manager)
	case *revoke != "":
		revokeToken(manager, *revoke)
	case *name != "":
		createToken(manager, *name, *class, *perms, *expiresHours, *maxUsage)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func createToken(manager *auth.Manager, name, class, perms string, expiresHours, maxUsage int64) {
	var permissions []string
	if perms != "" {
		for _, p := range strings.Split(perms, ",") {
			p = strings.TrimSpace(p)
			if !permission.Valid(p) {
				log.Fatal().Str("permission", p).Msg("Unknown permission")
			}
			permissions = append(permissions, p)
		}
	}

	secret, record, err := manager.CreateToken(name, models.TokenClass(class), permissions, &auth.CreateOptions{
		ExpiresIn: time.Duration(expiresHours) * time.Hour,
		MaxUsage:  maxUsage,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token")
	}

	log.Info().Str("token_id", record.ID).Str("class", string(record.Class)).Msg("Token created")

	// The secret is shown exactly once; it is not recoverable later.
	fmt.Printf("token id: %s\nsecret:   %s\n", record.ID, secret)
}

func revokeToken(manager *auth.Manager, id string) {
	err := manager.RevokeToken(id)
	switch {
	case errors.Is(err, auth.ErrTokenNotFound):
		log.Fatal().Str("token_id", id).Msg("Token not found")
	case errors.Is(err, auth.ErrAlreadyInactive):
		log.Warn().Str("token_id", id).Msg("Token was already inactive")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to revoke token")
	default:
		log.Info().Str("token_id", id).Msg("Token revoked")
	}
}

func listTokens(manager *auth.Manager) {
	tokens, err := manager.ListTokens()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list tokens")
	}
	for _, record := range tokens {
		state := "active"
		if !record.Active {
			state = "revoked"
		}
		fmt.Printf("%s  %-5s  %-8s  used=%d  %s\n",
			record.ID, record.Class, state, record.UsageCount, record.Name)
	}
}
