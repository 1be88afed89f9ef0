//go:build integration

package integration

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestHealth(t *testing.T) {
	resp := env.GET(t, "/api/v1/health")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		Status           string `json:"status"`
		HandoffReachable bool   `json:"handoff_reachable"`
		AttachedTabs     int    `json:"attached_tabs"`
	}](t, resp)
	requireField(t, result.Status, "ok", "status")
	t.Logf("handoff reachable: %v, attached tabs: %d", result.HandoffReachable, result.AttachedTabs)
}

func TestStats(t *testing.T) {
	resp := env.GET(t, "/api/v1/stats")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[map[string]any](t, resp)
	for _, key := range []string{"engine", "store", "feed_clients"} {
		if _, ok := result[key]; !ok {
			t.Fatalf("stats missing %q: %v", key, result)
		}
	}
}

func TestTabs(t *testing.T) {
	resp := env.GET(t, "/api/v1/tabs")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		Tabs []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"tabs"`
	}](t, resp)
	t.Logf("tabs: %d", len(result.Tabs))

	missing := env.GET(t, "/api/v1/tabs/does-not-exist")
	requireStatus(t, missing, http.StatusNotFound)
	missing.Body.Close()
}

func TestKeys(t *testing.T) {
	resp := env.PUT(t, "/api/v1/keys", map[string]string{"key": "Control"})
	requireStatus(t, resp, http.StatusOK)
	requireField(t, decodeJSON[struct {
		Key string `json:"key"`
	}](t, resp).Key, "Control", "key")

	clear := env.PUT(t, "/api/v1/keys", map[string]string{"key": ""})
	requireStatus(t, clear, http.StatusOK)
	clear.Body.Close()
}

func TestPolicyUpdate(t *testing.T) {
	next := make(map[string]any, len(env.Policy))
	for k, v := range env.Policy {
		next[k] = v
	}
	next["capture_file_size_minimum_kb"] = 64

	resp := env.PUT(t, "/api/v1/policy?persist=false", next)
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[map[string]any](t, resp)
	requireField(t, result["capture_file_size_minimum_kb"], any(float64(64)), "capture_file_size_minimum_kb")

	next["port"] = 80
	bad := env.PUT(t, "/api/v1/policy?persist=false", next)
	requireStatus(t, bad, http.StatusBadRequest)
	bad.Body.Close()
}

func TestMediaFeedOpens(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.BaseURL+"/api/v1/media/events?feeds=media", nil)
	resp, err := env.Client.Do(req)
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type = %q", ct)
	}
	// Nothing may arrive; reading until the deadline must not fail differently.
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
	}
}

func TestRecentMedia(t *testing.T) {
	resp := env.GET(t, "/api/v1/media")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		Items []map[string]any `json:"items"`
	}](t, resp)
	t.Logf("recent media: %d", len(result.Items))
}
