package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteSendsChatRequest(t *testing.T) {
	var got struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth header %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"All good."}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "k", "gpt-4o-mini", false)
	text, err := c.Complete(context.Background(), "sys", "hello")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "All good." {
		t.Fatalf("text %q", text)
	}
	if got.Model != "gpt-4o-mini" || len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	text, err := New(srv.URL, "k", "m", false).Complete(context.Background(), "", "hi")
	if err != nil || text != NoAnswer {
		t.Fatalf("got %q, %v", text, err)
	}
}

func TestCompleteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "k", "m", false).Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error on 429")
	}
	if _, err := New(srv.URL, "", "m", false).Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error without api key")
	}
	if text, err := New("", "", "", true).Complete(context.Background(), "", "hi"); err != nil || text == "" {
		t.Fatalf("skip mode: %q, %v", text, err)
	}
}
