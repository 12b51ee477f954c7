// Package main is a utility for generating bcrypt hashes of service token
// values. The service stores only bcrypt hashes of tokens — never the raw
// values — so this tool is used when manually seeding or verifying token
// records in the database without running the full server. Running it locally
// produces a hash that can be inserted directly into the service_tokens table.
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/orgsuite/orgsuite/internal/auth"
)

func main() {
	token := "ost_qHlTX4JvjK1yVUgRukLlgiwFQmFOiHdEhHYVJNfhNXc"
	if len(os.Args) > 1 {
		token = os.Args[1]
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), auth.BcryptCost)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(hash))
	fmt.Println("prefix:", auth.LookupPrefix(token))
}
