// Package main is a development utility for generating a test service token with its
// bcrypt hash and lookup prefix pre-computed. It prints the raw token, hash, prefix,
// and a ready-to-run SQL UPDATE statement so developers can quickly seed a usable
// token in a local database without running the full server flow. Do not use
// generated tokens in production — use the API to create tokens with proper expiry
// and scope settings.
package main

import (
	"fmt"
	"log"

	"github.com/orgsuite/orgsuite/internal/auth"
)

func main() {
	fullToken, hash, prefix, err := auth.GenerateServiceToken()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Service Token Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nFull Token: %s\n", fullToken)
	fmt.Printf("\nHash: %s\n", hash)
	fmt.Printf("\nLookup Prefix: %s\n", prefix)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Update:")
	fmt.Println("==========================================================")
	fmt.Printf(`
UPDATE service_tokens
SET token_hash = '%s',
    token_prefix = '%s'
WHERE name = 'dev-token';
`, hash, prefix)
	fmt.Println("\n==========================================================")
	fmt.Printf("Authorization Header: Bearer %s\n", fullToken)
	fmt.Println("==========================================================")
}
