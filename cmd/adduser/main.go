// Command adduser creates a password account for the local auth backend.
//
//	adduser -username alice -password hunter22
//
// A username without "@" gets the site's login domain appended, the same
// way the sign-in form treats it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/delumenta/JMBN/internal/auth"
	"github.com/delumenta/JMBN/internal/db"
	"github.com/delumenta/JMBN/internal/service"
	"github.com/delumenta/JMBN/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", envOr("JMBN_DB_PATH", "jmbn.db"), "SQLite database path")
	domain := flag.String("domain", envOr("JMBN_USERNAME_DOMAIN", "jmbn.local"), "login domain for bare usernames")
	username := flag.String("username", "", "username or email")
	password := flag.String("password", "", "password")
	flag.Parse()

	if *username == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	database, err := db.InitDB(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	users := service.NewUserService(store.NewUserStore(database))
	email := auth.SyntheticEmail(*username, *domain)
	name, _, _ := strings.Cut(*username, "@")
	user, err := users.CreatePasswordUser(context.Background(), email, name, *password)
	if err != nil {
		log.Fatalf("create %s: %v", email, err)
	}
	fmt.Printf("created %s (%s)\n", user.Email, user.ID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
