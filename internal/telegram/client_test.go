package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(sendMessageResponse{OK: true})
	}))
	defer server.Close()

	client := NewClient(server.URL, "bot-token", "chat-42")
	if err := client.SendMessage(context.Background(), "Task ready for review"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotPath != "/botbot-token/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.ChatID != "chat-42" || gotBody.Text != "Task ready for review" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSendMessage_NotConfigured(t *testing.T) {
	client := NewClient("https://api.telegram.org", "", "")
	err := client.SendMessage(context.Background(), "hello")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendMessage_APIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(sendMessageResponse{OK: false, Description: "chat not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "bot-token", "chat-42")
	err := client.SendMessage(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error when the API reports ok=false")
	}
}

func TestIsConfigured(t *testing.T) {
	if NewClient("x", "token", "").IsConfigured() {
		t.Error("missing chat id is not configured")
	}
	if NewClient("x", "", "chat").IsConfigured() {
		t.Error("missing bot token is not configured")
	}
	if !NewClient("x", "token", "chat").IsConfigured() {
		t.Error("token plus chat id is configured")
	}
}
