// Package main is a smoke-test utility that verifies the audit service's HTTP
// API is reachable and returning valid responses. It hits the health and
// version endpoints and prints the status code and response body, making it
// useful for quick post-deployment checks without needing external tooling
// like curl or a full integration test suite.
package main

import (
	"fmt"
	"io"
	"net/http"
)

func main() {
	for _, path := range []string{"/health", "/version"} {
		resp, err := http.Get("http://localhost:8080" + path)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("Error reading body: %v\n", err)
			return
		}

		fmt.Printf("GET %s -> %d\n%s\n", path, resp.StatusCode, string(body))
	}
}
