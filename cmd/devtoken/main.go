// Command devtoken mints an access token for local development against a
// server sharing the same JWT_SECRET.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/service"
)

func main() {
	id := pflag.StringP("id", "i", "", "actor id (required)")
	role := pflag.StringP("role", "r", string(domain.RoleUser), "actor role: user or admin")
	ttl := pflag.Duration("ttl", time.Hour, "token lifetime")
	secret := pflag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to $JWT_SECRET)")
	pflag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "devtoken: --secret or JWT_SECRET is required")
		os.Exit(2)
	}

	token, err := service.NewTokenService(*secret, *ttl).Issue(domain.Actor{ID: *id, Role: domain.Role(*role)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
