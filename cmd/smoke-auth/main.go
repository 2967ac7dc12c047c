package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Drives a running seiran-web instance through the registration flow and
// checks the credential-check contract: a fresh account awaits verification,
// a duplicate name is rejected, and a wrong password never authenticates.
func main() {
	base := os.Getenv("SEIRAN_WEB_ADDR")
	if base == "" {
		base = "http://localhost:8080"
	}

	rand.Seed(time.Now().UnixNano())
	name := fmt.Sprintf("smoke%d", rand.Intn(1_000_000))
	email := fmt.Sprintf("%s@smoke.test", name)
	password := fmt.Sprintf("sm0ke-%d!", rand.Int63())

	client := &http.Client{Timeout: 5 * time.Second}

	status, body := post(client, base+"/v1/register", map[string]any{
		"username": name,
		"email":    email,
		"password": password,
	})
	if status != http.StatusCreated {
		log.Fatalf("register: got %d: %s", status, body)
	}

	// The same name with swapped separators collides on safe_name.
	status, body = post(client, base+"/v1/register", map[string]any{
		"username": name,
		"email":    "other-" + email,
		"password": password,
	})
	if status != http.StatusConflict {
		log.Fatalf("duplicate register: got %d, want 409: %s", status, body)
	}

	// Unverified accounts pass the password check but cannot log in yet.
	status, body = post(client, base+"/v1/login", map[string]any{
		"username": name,
		"password": password,
	})
	if status != http.StatusForbidden {
		log.Fatalf("unverified login: got %d, want 403: %s", status, body)
	}

	status, body = post(client, base+"/v1/login", map[string]any{
		"username": name,
		"password": "definitely-not-" + password,
	})
	if status != http.StatusUnauthorized {
		log.Fatalf("wrong password login: got %d, want 401: %s", status, body)
	}

	fmt.Printf("✅ seiran-web smoke test passed: account=%s\n", name)
}

func post(client *http.Client, url string, payload map[string]any) (int, string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("marshal %s: %v", url, err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.String()
}
