// Package main is a smoke-test utility that checks a running API is reachable and healthy.
// It requests the system endpoints and the city catalog, prints each status and body, and
// exits non-zero when any of them fails, which makes it usable as a post-deployment check.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "API base URL")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	failed := false
	for _, path := range []string{"/health", "/ready", "/version", "/api/v1/cities"} {
		if !check(client, strings.TrimRight(*baseURL, "/")+path) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func check(client *http.Client, url string) bool {
	resp, err := client.Get(url) // #nosec G107 -- operator-supplied base URL
	if err != nil {
		fmt.Printf("%s\n  Error: %v\n", url, err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		fmt.Printf("%s\n  Error reading body: %v\n", url, err)
		return false
	}

	fmt.Printf("%s\n  Status: %d\n  Response: %s\n", url, resp.StatusCode, strings.TrimSpace(string(body)))
	return resp.StatusCode == http.StatusOK
}
