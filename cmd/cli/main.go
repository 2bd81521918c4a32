package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	key := os.Getenv("API_KEY")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter a site URL to monitor (e.g., https://example.com): ")
	raw, _ := reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		fmt.Println("Invalid URL.")
		return
	}

	fmt.Print("Display name (optional): ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	body, _ := json.Marshal(map[string]string{"url": raw, "name": name})
	req, _ := http.NewRequest(http.MethodPost, api+"/api/monitors", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Println("API returned status:", resp.Status)
		return
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		fmt.Println("Added, but could not decode response:", err)
		return
	}
	fmt.Printf("Added monitor %d. Running a deep check...\n", created.ID)

	chk, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/monitors/%d/check", api, created.ID), nil)
	if key != "" {
		chk.Header.Set("X-API-Key", key)
	}
	resp2, err := http.DefaultClient.Do(chk)
	if err != nil {
		fmt.Println("Check request failed:", err)
		return
	}
	defer resp2.Body.Close()
	if resp2.StatusCode >= 200 && resp2.StatusCode < 300 {
		fmt.Println("Checked! GET /api/monitors for current state.")
	} else {
		fmt.Println("Check returned status:", resp2.Status)
	}
}
