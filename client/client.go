package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperknow/hyperknow/models"
	"github.com/hyperknow/hyperknow/types"
)

// bookIDSeparator joins multiple reference-book ids into the single string the
// backend expects.
const bookIDSeparator = "///"

// Client talks to the Hyperknow generation backend. All methods are safe for
// concurrent use; polling endpoints use the configured timeout, streaming
// endpoints do not (streams stay open for the lifetime of a run).
type Client struct {
	baseURL    string
	httpClient *http.Client
	streamer   *http.Client
}

// New creates a Client for the given base URL. A non-positive timeout falls
// back to 30 seconds for the one-shot endpoints.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		streamer:   &http.Client{},
	}
}

// saveQueryPayload defines the request body for query submission.
type saveQueryPayload struct {
	Query              string `json:"query"`
	UserID             string `json:"user_id"`
	BookIDs            string `json:"book_ids"`
	WebSearch          bool   `json:"websearch"`
	AdditionalComments string `json:"additional_comments,omitempty"`
}

type saveQueryResponse struct {
	ConversationID string `json:"conversation_id"`
	Error          string `json:"error,omitempty"`
}

// SubmitQuery registers a new generation run and returns its conversation id.
// A response without a conversation id is a submission failure even when the
// HTTP status is 200.
func (c *Client) SubmitQuery(ctx context.Context, job models.Job) (string, error) {
	if err := models.ValidateStruct(job); err != nil {
		return "", types.NewSubmissionError("invalid query", err)
	}
	payload := saveQueryPayload{
		Query:              job.Query,
		UserID:             job.UserID,
		BookIDs:            strings.Join(job.BookIDs, bookIDSeparator),
		WebSearch:          job.WebSearch,
		AdditionalComments: job.Comments,
	}
	var out saveQueryResponse
	if err := c.postJSON(ctx, "/save_query", payload, &out); err != nil {
		return "", types.NewSubmissionError("submitting query", err)
	}
	if out.ConversationID == "" {
		msg := out.Error
		if msg == "" {
			msg = "response carried no conversation id"
		}
		return "", types.NewSubmissionError(msg, nil)
	}
	return out.ConversationID, nil
}

// progressPayload identifies a run for the progress endpoints.
type progressPayload struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

type progressResponse struct {
	CompletedSections string `json:"completed_sections"`
	IsComplete        bool   `json:"is_complete"`
}

// FetchProgress returns the latest full content snapshot for a run.
func (c *Client) FetchProgress(ctx context.Context, userID, conversationID string) (models.ContentSnapshot, error) {
	var out progressResponse
	err := c.postJSON(ctx, "/get_progress", progressPayload{UserID: userID, ConversationID: conversationID}, &out)
	if err != nil {
		return models.ContentSnapshot{}, types.NewProgressFetchError("fetching content progress", err)
	}
	return models.ContentSnapshot{Markdown: out.CompletedSections, IsComplete: out.IsComplete}, nil
}

type sectionProgressResponse struct {
	Outline    *models.Outline  `json:"outline,omitempty"`
	Sections   []models.Section `json:"sections,omitempty"`
	IsComplete bool             `json:"is_complete"`
}

// FetchSectionProgress returns the outline (if already available) and the
// per-section statuses for a run.
func (c *Client) FetchSectionProgress(ctx context.Context, userID, conversationID string) (models.SectionProgress, error) {
	var out sectionProgressResponse
	err := c.postJSON(ctx, "/get_section_progress", progressPayload{UserID: userID, ConversationID: conversationID}, &out)
	if err != nil {
		return models.SectionProgress{}, types.NewProgressFetchError("fetching section progress", err)
	}
	return models.SectionProgress{Outline: out.Outline, Sections: out.Sections, IsComplete: out.IsComplete}, nil
}

// FetchArticle returns the final markdown of a completed run.
func (c *Client) FetchArticle(ctx context.Context, userID, conversationID string) (string, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("conversation_id", conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/article?"+q.Encode(), nil)
	if err != nil {
		return "", types.NewProgressFetchError("building article request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", types.NewProgressFetchError("fetching article", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", types.NewProgressFetchError(fmt.Sprintf("fetching article: %s: %s", resp.Status, strings.TrimSpace(string(b))), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewProgressFetchError("reading article body", err)
	}
	return string(body), nil
}

// DiagramAndTopics is the one-time post-completion enrichment of an article.
type DiagramAndTopics struct {
	Diagram       string   `json:"-"`
	RelatedTopics []string `json:"-"`
}

type diagramResponse struct {
	Diagram       string `json:"diagram"`
	RelatedTopics struct {
		RelatedConcepts []string `json:"related_concepts"`
	} `json:"related_topics"`
}

// FetchDiagramAndTopics fetches the concept diagram and related topics for a
// completed run. The diagram arrives wrapped in a mermaid code fence, which is
// stripped; a payload with neither diagram nor topics is a render error.
func (c *Client) FetchDiagramAndTopics(ctx context.Context, userID, conversationID string) (DiagramAndTopics, error) {
	var out diagramResponse
	err := c.postJSON(ctx, "/generate_diagram_and_topics", progressPayload{UserID: userID, ConversationID: conversationID}, &out)
	if err != nil {
		return DiagramAndTopics{}, types.NewRenderError("fetching diagram and topics", err)
	}
	res := DiagramAndTopics{
		Diagram:       stripMermaidFence(out.Diagram),
		RelatedTopics: out.RelatedTopics.RelatedConcepts,
	}
	if res.Diagram == "" && len(res.RelatedTopics) == 0 {
		return DiagramAndTopics{}, types.NewRenderError("response carried neither diagram nor related topics", nil)
	}
	return res, nil
}

// stripMermaidFence removes a surrounding ```mermaid code fence, if present.
func stripMermaidFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```mermaid") {
		s = strings.TrimPrefix(s, "```mermaid")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type explanationsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Articles []archiveArticle `json:"articles"`
	} `json:"data"`
	Message string `json:"message,omitempty"`
}

type archiveArticle struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Topic          string `json:"topic"`
	GeneratedAt    string `json:"generated_at"`
	ReadingTime    int    `json:"estimated_reading_time"`
	WordCount      int    `json:"word_count"`
	CharacterCount int    `json:"character_count"`
}

// ListExplanations returns the user's generated articles, newest first as the
// backend orders them.
func (c *Client) ListExplanations(ctx context.Context, userID string) ([]models.Article, error) {
	var out explanationsResponse
	payload := struct {
		UserID string `json:"user_id"`
	}{UserID: userID}
	if err := c.postJSON(ctx, "/get_generated_explanations", payload, &out); err != nil {
		return nil, types.NewProgressFetchError("listing articles", err)
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "listing articles failed"
		}
		return nil, types.NewProgressFetchError(msg, nil)
	}
	articles := make([]models.Article, 0, len(out.Data.Articles))
	for _, a := range out.Data.Articles {
		art := models.Article{
			ConversationID: a.ConversationID,
			UserID:         a.UserID,
			Topic:          a.Topic,
			ReadingTime:    a.ReadingTime,
			WordCount:      a.WordCount,
			CharacterCount: a.CharacterCount,
		}
		if t, err := time.Parse(time.RFC3339, a.GeneratedAt); err == nil {
			art.GeneratedAt = t
		}
		articles = append(articles, art)
	}
	return articles, nil
}

// AskQuestion streams a follow-up answer about an article. The answer arrives
// as raw text chunks; each chunk is passed to onChunk as it is read.
func (c *Client) AskQuestion(ctx context.Context, userID, conversationID, question string, onChunk func(string)) error {
	payload := struct {
		UserID         string `json:"user_id"`
		ConversationID string `json:"conversation_id"`
		Question       string `json:"question"`
	}{UserID: userID, ConversationID: conversationID, Question: question}
	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewStreamError("encoding follow-up question", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask_question", bytes.NewReader(body))
	if err != nil {
		return types.NewStreamError("building follow-up request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.streamer.Do(req)
	if err != nil {
		return types.NewStreamError("opening follow-up stream", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return types.NewStreamError(fmt.Sprintf("follow-up stream: %s: %s", resp.Status, strings.TrimSpace(string(b))), nil)
	}
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			onChunk(string(buf[:n]))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return types.NewStreamError("reading follow-up stream", err)
		}
	}
}

type authResponse struct {
	UserID string `json:"user_id"`
	Error  string `json:"error,omitempty"`
}

type authPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an existing account and returns the user id.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.auth(ctx, "/login", email, password)
}

// Register creates an account and returns the new user id.
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	return c.auth(ctx, "/register", email, password)
}

func (c *Client) auth(ctx context.Context, path, email, password string) (string, error) {
	var out authResponse
	if err := c.postJSON(ctx, path, authPayload{Email: email, Password: password}, &out); err != nil {
		return "", fmt.Errorf("authentication request failed: %w", err)
	}
	if out.UserID == "" {
		msg := out.Error
		if msg == "" {
			msg = "response carried no user id"
		}
		return "", fmt.Errorf("authentication failed: %s", msg)
	}
	return out.UserID, nil
}

// Profile is the free-form user profile blob the backend stores.
type Profile map[string]any

// GetProfile fetches the profile for a user.
func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get_user_profile?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetching profile: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return p, nil
}

// SaveProfile stores the profile for a user.
func (c *Client) SaveProfile(ctx context.Context, userID string, p Profile) error {
	payload := map[string]any{"user_id": userID, "profile": p}
	if err := c.postJSON(ctx, "/save_user_profile", payload, nil); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// Book is one uploaded reference document available for grounding.
type Book struct {
	ID    string `json:"book_id"`
	Title string `json:"title"`
}

type booksResponse struct {
	Books []Book `json:"books"`
}

// ListBooks returns the reference books available to a user.
func (c *Client) ListBooks(ctx context.Context, userID string) ([]Book, error) {
	var out booksResponse
	payload := struct {
		UserID string `json:"user_id"`
	}{UserID: userID}
	if err := c.postJSON(ctx, "/get_vectorized_book_info", payload, &out); err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return out.Books, nil
}

// UploadBook uploads a reference document for vectorization and returns the
// backend's acknowledgement message.
func (c *Client) UploadBook(ctx context.Context, userID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("user_id", userID); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_reference_book", &body)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.streamer.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading book: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("uploading book: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	var ack struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &ack); err == nil && ack.Message != "" {
		return ack.Message, nil
	}
	return strings.TrimSpace(string(raw)), nil
}

// postJSON sends a JSON POST and decodes the JSON response into out (when out
// is non-nil). Non-200 statuses are returned as errors with the body included.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}
