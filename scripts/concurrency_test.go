//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the circulation API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <item_id> <user1_id> [user2_id ...]
//
// Or use the convenience environment variables:
//
//	ITEM_ID=<uuid>  USER_IDS=<uuid1>,<uuid2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines (one per user) all attempting to borrow the same item simultaneously.
//  2. Prints how many got a loan vs. were queued on the waitlist.
//  3. Reads the item back and checks that loans taken never exceed the copies that were free.
//
// Prerequisites:
//   - Server must be running.
//   - The item and N distinct users must already exist, and none of the users may owe fines.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type borrowResult struct {
	UserID     string
	Outcome    string // "borrowed" or "queued"
	StatusCode int
	Err        error
}

type item struct {
	ID              string `json:"id"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

func main() {
	serverAddr := os.Getenv("SERVER_URL")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	itemID := os.Getenv("ITEM_ID")
	var userIDs []string
	if v := os.Getenv("USER_IDS"); v != "" {
		userIDs = strings.Split(v, ",")
	}

	// Support positional args: script <item_id> [user_ids...]
	args := os.Args[1:]
	if len(args) >= 1 {
		itemID = args[0]
	}
	if len(args) >= 2 {
		userIDs = args[1:]
	}

	if itemID == "" {
		log.Fatal("Usage: ITEM_ID=<uuid> USER_IDS=<u1,u2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <item_id> <user1_id> [user2_id ...]")
	}
	if len(userIDs) == 0 {
		log.Fatal("At least one user ID must be provided via USER_IDS env or positional args")
	}

	before, err := fetchItem(serverAddr, itemID)
	if err != nil {
		log.Fatalf("reading item: %v", err)
	}

	fmt.Printf("=== Circulation Concurrency Test ===\n")
	fmt.Printf("Server : %s\n", serverAddr)
	fmt.Printf("Item   : %s (%d of %d copies free)\n", itemID, before.AvailableCopies, before.TotalCopies)
	fmt.Printf("Users  : %d\n\n", len(userIDs))

	results := make([]borrowResult, len(userIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, uid := range userIDs {
		wg.Add(1)
		go func(idx int, userID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptBorrow(serverAddr, itemID, strings.TrimSpace(userID))
		}(i, uid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")

	var borrowed, queued, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] user=%-38s err=%v\n", r.UserID, r.Err)
		case r.Outcome == "borrowed":
			borrowed++
			fmt.Printf("  [LOAN] user=%-38s status=%d\n", r.UserID, r.StatusCode)
		case r.Outcome == "queued":
			queued++
			fmt.Printf("  [WAIT] user=%-38s status=%d\n", r.UserID, r.StatusCode)
		default:
			failures++
			fmt.Printf("  [FAIL] user=%-38s status=%d unexpected response\n", r.UserID, r.StatusCode)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Borrowed : %d\n", borrowed)
	fmt.Printf("Queued   : %d\n", queued)
	fmt.Printf("Failures : %d\n", failures)
	fmt.Printf("Total    : %d\n\n", len(userIDs))

	after, err := fetchItem(serverAddr, itemID)
	if err != nil {
		log.Fatalf("reading item: %v", err)
	}

	fmt.Println("--- Invariant Check ---")
	ok := borrowed <= before.AvailableCopies &&
		after.AvailableCopies == before.AvailableCopies-borrowed &&
		after.AvailableCopies >= 0
	fmt.Printf("Free copies before=%d after=%d, loans granted=%d: ", before.AvailableCopies, after.AvailableCopies, borrowed)
	if ok {
		fmt.Println("OK")
	} else {
		fmt.Println("VIOLATED")
	}

	if failures > 0 || !ok {
		os.Exit(1)
	}
}

// attemptBorrow sends POST /items/{itemID}/borrow for the given userID and parses the outcome.
func attemptBorrow(serverAddr, itemID, userID string) borrowResult {
	url := fmt.Sprintf("%s/items/%s/borrow", serverAddr, itemID)
	body := fmt.Sprintf(`{"user_id":"%s"}`, userID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		return borrowResult{UserID: userID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return borrowResult{UserID: userID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	if msg, ok := parsed["error"].(string); ok {
		return borrowResult{UserID: userID, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", msg)}
	}

	outcome, _ := parsed["outcome"].(string)
	return borrowResult{UserID: userID, Outcome: outcome, StatusCode: resp.StatusCode}
}

func fetchItem(serverAddr, itemID string) (*item, error) {
	resp, err := http.Get(serverAddr + "/items")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var items []item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == itemID {
			return &items[i], nil
		}
	}
	return nil, fmt.Errorf("item %s not found", itemID)
}
