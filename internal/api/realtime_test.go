package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestUserEventsStreamDeliversIncomingMessage(t *testing.T) {
	app := setupTestServer(t)
	sellerToken, sellerID := registerAndGetToken(t, app, "satici")
	buyerToken, _ := registerAndGetToken(t, app, "alici")
	adminTok, _ := adminToken(t, app)
	l := activeListing(t, app, sellerToken, adminTok, "2016 Ford Focus 1.5 TDCi", 600_000_00)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, app.ts.URL+"/api/v1/user/events", nil)
	req.Header.Set("Authorization", "Bearer "+sellerToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events stream: expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("events stream: expected text/event-stream, got %q", resp.Header.Get("Content-Type"))
	}

	startReq, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/v1/listings/%d/conversations", app.ts.URL, l.ID),
		bytes.NewBufferString(`{"message":"Takas düşünür müsünüz?"}`))
	startReq.Header.Set("Authorization", "Bearer "+buyerToken)
	startReq.Header.Set("Content-Type", "application/json")
	startResp, err := http.DefaultClient.Do(startReq)
	if err != nil {
		t.Fatal(err)
	}
	startResp.Body.Close()
	if startResp.StatusCode != http.StatusCreated {
		t.Fatalf("start conversation: expected 201, got %d", startResp.StatusCode)
	}

	eventType, eventData := readSSEEvent(t, bufio.NewReader(resp.Body), 5*time.Second)
	if eventType != "message.created" {
		t.Fatalf("expected event type message.created, got %q", eventType)
	}

	var payload struct {
		Type    string         `json:"type"`
		UserID  int64          `json:"user_id"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(eventData, &payload); err != nil {
		t.Fatalf("decode event payload: %v", err)
	}
	if payload.UserID != sellerID {
		t.Fatalf("payload user_id: expected %d, got %d", sellerID, payload.UserID)
	}
	if got := payload.Payload["body"]; got != "Takas düşünür müsünüz?" {
		t.Fatalf("payload body: expected message text, got %#v", got)
	}
}

func TestUserEventsRequiresAuthentication(t *testing.T) {
	app := setupTestServer(t)

	resp, err := http.Get(app.ts.URL + "/api/v1/user/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous events: expected 401, got %d", resp.StatusCode)
	}
}

func readSSEEvent(t *testing.T, reader *bufio.Reader, timeout time.Duration) (string, []byte) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var eventType string
	var dataLines []string

	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE line: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if eventType != "" && len(dataLines) > 0 {
				return eventType, []byte(strings.Join(dataLines, "\n"))
			}
			eventType = ""
			dataLines = dataLines[:0]
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	t.Fatalf("timed out waiting for SSE event after %s", timeout)
	return "", nil
}
