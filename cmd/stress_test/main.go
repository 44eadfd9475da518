package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/apartment-hub/internal/auth"
	"github.com/rl1809/apartment-hub/internal/core/domain"
)

// Fires concurrent create-order requests for one resident against a running
// server. Exactly one may convert the cart; the rest must be rejected or get
// an order from the already emptied cart.
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	productID := flag.String("product", "", "product id to put in the cart")
	totalRequests := flag.Int("requests", 50, "concurrent create-order requests")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *productID == "" {
		log.Fatal("JWT_SECRET and -product are required")
	}

	residentID := "stress-" + uuid.NewString()
	token, err := auth.NewTokens(secret).Issue(domain.Principal{ResidentID: residentID, Role: domain.RoleResident}, time.Hour)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}

	body, _ := json.Marshal(map[string]any{"product_id": *productID, "quantity": 2})
	if status := call(client, http.MethodPost, *baseURL+"/api/cart/lines", token, body, nil); status != http.StatusOK {
		log.Fatalf("add to cart: status %d", status)
	}

	// Counters
	var created, conflicts, failed atomic.Int32
	var nonEmpty atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var order domain.Order
			switch call(client, http.MethodPost, *baseURL+"/api/orders", token, nil, &order) {
			case http.StatusCreated:
				created.Add(1)
				if len(order.Lines) > 0 {
					nonEmpty.Add(1)
				}
			case http.StatusConflict:
				conflicts.Add(1)
			default:
				failed.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Resident:          %s\n", residentID)
	fmt.Printf("Total Requests:    %d\n", *totalRequests)
	fmt.Printf("Orders Created:    %d\n", created.Load())
	fmt.Printf("  with lines:      %d\n", nonEmpty.Load())
	fmt.Printf("Conflicts (409):   %d\n", conflicts.Load())
	fmt.Printf("Failed:            %d\n", failed.Load())
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Println("==========================================")

	if nonEmpty.Load() == 1 {
		fmt.Println("PASS: cart converted exactly once")
	} else {
		fmt.Printf("FAIL: expected 1 order with lines, got %d\n", nonEmpty.Load())
	}
}

func call(client *http.Client, method, url, token string, body []byte, out any) int {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}
