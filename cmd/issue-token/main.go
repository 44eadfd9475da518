// Command issue-token prints a signed bearer token for local testing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rl1809/apartment-hub/internal/auth"
	"github.com/rl1809/apartment-hub/internal/core/domain"
)

func main() {
	resident := flag.String("resident", "", "resident id")
	role := flag.String("role", string(domain.RoleResident), "resident, staff or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *resident == "" {
		log.Fatal("JWT_SECRET and -resident are required")
	}
	if !domain.Role(*role).Valid() {
		log.Fatalf("unknown role %q", *role)
	}

	token, err := auth.NewTokens(secret).Issue(domain.Principal{
		ResidentID: *resident,
		Role:       domain.Role(*role),
	}, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
