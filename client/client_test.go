package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperknow/hyperknow/models"
	"github.com/hyperknow/hyperknow/types"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(srv.URL, 5*time.Second), srv
}

func testJob() models.Job {
	return models.Job{UserID: "u1", Query: "how do glaciers form", WebSearch: true}
}

func TestSubmitQuery(t *testing.T) {
	var gotBody map[string]any
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/save_query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"conversation_id": "conv-9"})
	}))
	defer srv.Close()

	job := testJob()
	job.BookIDs = []string{"b1", "b2"}
	id, err := c.SubmitQuery(context.Background(), job)
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if id != "conv-9" {
		t.Errorf("conversation id = %q", id)
	}
	if gotBody["book_ids"] != "b1///b2" {
		t.Errorf("book_ids joined as %q", gotBody["book_ids"])
	}
	if gotBody["websearch"] != true {
		t.Errorf("websearch = %v", gotBody["websearch"])
	}
}

func TestSubmitQueryMissingConversationID(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
	}))
	defer srv.Close()

	_, err := c.SubmitQuery(context.Background(), testJob())
	if err == nil {
		t.Fatal("expected an error for a 200 response without conversation_id")
	}
	if !types.HasCode(err, types.CodeSubmission) {
		t.Errorf("error not a submission error: %v", err)
	}
}

func TestSubmitQueryServerError(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := c.SubmitQuery(context.Background(), testJob())
	if !types.HasCode(err, types.CodeSubmission) {
		t.Errorf("error not a submission error: %v", err)
	}
}

func TestSubmitQueryValidatesJob(t *testing.T) {
	c := New("http://unused.invalid", time.Second)
	_, err := c.SubmitQuery(context.Background(), models.Job{UserID: "u1"})
	if !types.HasCode(err, types.CodeSubmission) {
		t.Errorf("empty query accepted: %v", err)
	}
}

func TestOpenEventStreamDeliversDataLines(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("conversation_id"); got != "conv-1" {
			t.Errorf("conversation_id = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: first message\n\n")
		fmt.Fprint(w, ": keepalive comment\n")
		fmt.Fprint(w, "data: second message\n\n")
	}))
	defer srv.Close()

	job := testJob()
	job.ConversationID = "conv-1"
	stream, err := c.OpenEventStream(context.Background(), job)
	if err != nil {
		t.Fatalf("OpenEventStream: %v", err)
	}
	defer stream.Close()

	var got []string
	for msg := range stream.Messages() {
		got = append(got, msg)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream ended with error: %v", err)
	}
	want := []string{"first message", "second message"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("messages = %v, want %v", got, want)
	}
}

func TestOpenEventStreamNon200(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such conversation", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := c.OpenEventStream(context.Background(), testJob())
	if !types.HasCode(err, types.CodeStream) {
		t.Errorf("expected a stream error, got %v", err)
	}
}

func TestOpenEventStreamReportsTransportDrop(t *testing.T) {
	// Declare more bytes than are written so the server drops the
	// connection mid-body.
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		fmt.Fprint(w, "data: first message\n\n")
	}))
	defer srv.Close()

	stream, err := c.OpenEventStream(context.Background(), testJob())
	if err != nil {
		t.Fatalf("OpenEventStream: %v", err)
	}
	defer stream.Close()

	var got []string
	for msg := range stream.Messages() {
		got = append(got, msg)
	}
	if len(got) != 1 || got[0] != "first message" {
		t.Errorf("messages before the drop = %v", got)
	}
	if err := stream.Err(); !types.HasCode(err, types.CodeStream) {
		t.Errorf("dropped stream reported %v, want a stream error", err)
	}
}

func TestFetchProgress(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_progress" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"completed_sections": "# Glaciers\n\nIce.",
			"is_complete":        true,
		})
	}))
	defer srv.Close()

	snap, err := c.FetchProgress(context.Background(), "u1", "conv-1")
	if err != nil {
		t.Fatalf("FetchProgress: %v", err)
	}
	if snap.Markdown != "# Glaciers\n\nIce." || !snap.IsComplete {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestFetchProgressError(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := c.FetchProgress(context.Background(), "u1", "conv-1")
	if !types.HasCode(err, types.CodeProgressFetch) {
		t.Errorf("expected a progress fetch error, got %v", err)
	}
}

func TestFetchSectionProgress(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"outline": map[string]any{
				"sections": []map[string]any{
					{"section_id": "s1", "title": "Formation", "learning_goals": []string{"accumulation"}},
				},
			},
			"sections": []map[string]any{
				{"section_id": "s1", "status": "text_complete"},
			},
			"is_complete": false,
		})
	}))
	defer srv.Close()

	progress, err := c.FetchSectionProgress(context.Background(), "u1", "conv-1")
	if err != nil {
		t.Fatalf("FetchSectionProgress: %v", err)
	}
	if progress.Outline == nil || len(progress.Outline.Sections) != 1 {
		t.Fatalf("outline = %+v", progress.Outline)
	}
	if progress.Outline.Sections[0].Title != "Formation" {
		t.Errorf("outline title = %q", progress.Outline.Sections[0].Title)
	}
	if len(progress.Sections) != 1 || progress.Sections[0].Status != models.SectionTextComplete {
		t.Errorf("sections = %+v", progress.Sections)
	}
}

func TestFetchArticle(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "u1" {
			t.Errorf("user_id missing from query")
		}
		fmt.Fprint(w, "# Final article")
	}))
	defer srv.Close()

	md, err := c.FetchArticle(context.Background(), "u1", "conv-1")
	if err != nil {
		t.Fatalf("FetchArticle: %v", err)
	}
	if md != "# Final article" {
		t.Errorf("markdown = %q", md)
	}
}

func TestFetchDiagramAndTopicsStripsFence(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"diagram": "```mermaid\ngraph TD; A-->B;\n```",
			"related_topics": map[string]any{
				"related_concepts": []string{"ice ages", "moraines"},
			},
		})
	}))
	defer srv.Close()

	got, err := c.FetchDiagramAndTopics(context.Background(), "u1", "conv-1")
	if err != nil {
		t.Fatalf("FetchDiagramAndTopics: %v", err)
	}
	if got.Diagram != "graph TD; A-->B;" {
		t.Errorf("diagram = %q", got.Diagram)
	}
	if len(got.RelatedTopics) != 2 {
		t.Errorf("topics = %v", got.RelatedTopics)
	}
}

func TestFetchDiagramAndTopicsEmptyPayload(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	_, err := c.FetchDiagramAndTopics(context.Background(), "u1", "conv-1")
	if !types.HasCode(err, types.CodeRender) {
		t.Errorf("expected a render error, got %v", err)
	}
}

func TestListExplanations(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"articles": []map[string]any{
					{
						"conversation_id":        "conv-1",
						"user_id":                "u1",
						"topic":                  "glaciers",
						"generated_at":           "2026-08-30T10:00:00Z",
						"estimated_reading_time": 4,
						"word_count":             812,
						"character_count":        5120,
					},
				},
			},
		})
	}))
	defer srv.Close()

	articles, err := c.ListExplanations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListExplanations: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles", len(articles))
	}
	a := articles[0]
	if a.Topic != "glaciers" || a.WordCount != 812 || a.GeneratedAt.IsZero() {
		t.Errorf("article = %+v", a)
	}
}

func TestListExplanationsFailureEnvelope(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "no such user"})
	}))
	defer srv.Close()

	_, err := c.ListExplanations(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected an error from success=false")
	}
}

func TestAskQuestionStreamsChunks(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "Glaciers form ")
		flusher.Flush()
		fmt.Fprint(w, "from compacted snow.")
	}))
	defer srv.Close()

	var got string
	err := c.AskQuestion(context.Background(), "u1", "conv-1", "how?", func(chunk string) {
		got += chunk
	})
	if err != nil {
		t.Fatalf("AskQuestion: %v", err)
	}
	if got != "Glaciers form from compacted snow." {
		t.Errorf("answer = %q", got)
	}
}

func TestLogin(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.c" {
			t.Errorf("email = %q", body["email"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"user_id": "u-77"})
	}))
	defer srv.Close()

	id, err := c.Login(context.Background(), "a@b.c", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if id != "u-77" {
		t.Errorf("user id = %q", id)
	}
}

func TestLoginRejected(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "wrong password"})
	}))
	defer srv.Close()

	if _, err := c.Login(context.Background(), "a@b.c", "nope"); err == nil {
		t.Fatal("expected an error")
	}
}
