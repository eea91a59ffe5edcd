package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"lingochat/internal/config"
	"lingochat/internal/models"
	"lingochat/internal/redis"
	"lingochat/internal/service/chat"
	"lingochat/internal/session"
	"lingochat/internal/storage"
	"lingochat/internal/worker"
)

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) GenerateReply(ctx context.Context, utterance string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return "echo: " + utterance, nil
}

func newTestServer(t *testing.T, gen *stubGenerator) (*gin.Engine, *sql.DB, *chat.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	cache, err := redis.NewClient(&config.Config{
		Redis: config.RedisConfig{Host: host, Port: port},
	})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	chatService := chat.NewService(db)
	sessions := session.NewStore(cache, time.Hour)
	handler := NewHandler(chatService, gen, sessions)
	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, chatService
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode response %s: %v", data, err)
	}
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d (body: %s)", want, w.Code, w.Body.String())
	}
}

func loginAs(t *testing.T, router *gin.Engine, email, name, tongue string) (int64, map[string]string) {
	t.Helper()
	w := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{
		"email":         email,
		"display_name":  name,
		"mother_tongue": tongue,
	}, nil)
	assertStatus(t, w, http.StatusOK)
	var body struct {
		ID           int64  `json:"id"`
		SessionToken string `json:"session_token"`
	}
	decodeJSON(t, w.Body.Bytes(), &body)
	if body.ID <= 0 || body.SessionToken == "" {
		t.Fatalf("bad login response: %s", w.Body.String())
	}
	return body.ID, map[string]string{"Authorization": "Bearer " + body.SessionToken}
}

func TestLoginFirstWriteWins(t *testing.T) {
	router, _, _ := newTestServer(t, &stubGenerator{})

	firstID, _ := loginAs(t, router, "a@x.com", "Alice", "English")

	w := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{
		"email":        "a@x.com",
		"display_name": "NotAlice",
	}, nil)
	assertStatus(t, w, http.StatusOK)
	var body struct {
		ID          int64  `json:"id"`
		DisplayName string `json:"display_name"`
	}
	decodeJSON(t, w.Body.Bytes(), &body)
	if body.ID != firstID {
		t.Fatalf("expected same user id %d, got %d", firstID, body.ID)
	}
	if body.DisplayName != "Alice" {
		t.Fatalf("display name updated on repeat login: %q", body.DisplayName)
	}
}

func TestRoomsCreateSelectAndDuplicates(t *testing.T) {
	router, _, _ := newTestServer(t, &stubGenerator{})
	_, authHeader := loginAs(t, router, "a@x.com", "Alice", "English")

	// Authorization required.
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/rooms",
		map[string]string{"name": "Beginners"}, nil), http.StatusUnauthorized)

	w := doJSONRequest(t, router, http.MethodPost, "/api/rooms",
		map[string]string{"name": "Beginners"}, authHeader)
	assertStatus(t, w, http.StatusCreated)
	var created struct {
		Room models.Room `json:"room"`
	}
	decodeJSON(t, w.Body.Bytes(), &created)
	if created.Room.Language != "English" {
		t.Fatalf("expected default language, got %q", created.Room.Language)
	}

	// Duplicate name yields a second, distinct room.
	w = doJSONRequest(t, router, http.MethodPost, "/api/rooms",
		map[string]string{"name": "Beginners"}, authHeader)
	assertStatus(t, w, http.StatusCreated)
	var dup struct {
		Room models.Room `json:"room"`
	}
	decodeJSON(t, w.Body.Bytes(), &dup)
	if dup.Room.ID == created.Room.ID {
		t.Fatalf("duplicate room shares id %d", dup.Room.ID)
	}

	w = doJSONRequest(t, router, http.MethodGet, "/api/rooms", nil, nil)
	assertStatus(t, w, http.StatusOK)
	var listed struct {
		Rooms []models.Room `json:"rooms"`
	}
	decodeJSON(t, w.Body.Bytes(), &listed)
	if len(listed.Rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(listed.Rooms))
	}

	// Selecting by name resolves to the first match.
	w = doJSONRequest(t, router, http.MethodPost, "/api/rooms/select",
		map[string]string{"name": "Beginners"}, authHeader)
	assertStatus(t, w, http.StatusOK)
	var selected struct {
		Room models.Room `json:"room"`
	}
	decodeJSON(t, w.Body.Bytes(), &selected)
	if selected.Room.ID != created.Room.ID {
		t.Fatalf("expected first room %d, got %d", created.Room.ID, selected.Room.ID)
	}

	// Unknown name: warning, no state change.
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/rooms/select",
		map[string]string{"name": "missing"}, authHeader), http.StatusNotFound)
}

func TestSendMessageTurn(t *testing.T) {
	router, _, chatService := newTestServer(t, &stubGenerator{})
	userID, authHeader := loginAs(t, router, "a@x.com", "Alice", "English")

	w := doJSONRequest(t, router, http.MethodPost, "/api/rooms",
		map[string]string{"name": "Practice"}, authHeader)
	assertStatus(t, w, http.StatusCreated)
	var created struct {
		Room models.Room `json:"room"`
	}
	decodeJSON(t, w.Body.Bytes(), &created)

	w = doJSONRequest(t, router, http.MethodPost, "/send_message", map[string]any{
		"user_id": userID,
		"room_id": created.Room.ID,
		"message": "kia ora",
	}, nil)
	assertStatus(t, w, http.StatusOK)
	var turn struct {
		BotResponse string `json:"bot_response"`
	}
	decodeJSON(t, w.Body.Bytes(), &turn)
	if turn.BotResponse != "echo: kia ora" {
		t.Fatalf("unexpected bot response %q", turn.BotResponse)
	}

	history, err := chatService.History(context.Background(), created.Room.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Content != "kia ora" || history[0].UserID == nil {
		t.Fatalf("user entry malformed: %+v", history[0])
	}
	if history[1].Role != models.RoleBot || history[1].Content != "echo: kia ora" || history[1].UserID != nil {
		t.Fatalf("bot entry malformed: %+v", history[1])
	}
}

func TestSendMessageValidation(t *testing.T) {
	router, _, _ := newTestServer(t, &stubGenerator{})
	userID, authHeader := loginAs(t, router, "a@x.com", "Alice", "English")
	w := doJSONRequest(t, router, http.MethodPost, "/api/rooms",
		map[string]string{"name": "Practice"}, authHeader)
	assertStatus(t, w, http.StatusCreated)
	var created struct {
		Room models.Room `json:"room"`
	}
	decodeJSON(t, w.Body.Bytes(), &created)

	cases := []map[string]any{
		{"room_id": created.Room.ID, "message": "hi"},
		{"user_id": userID, "message": "hi"},
		{"user_id": userID, "room_id": created.Room.ID, "message": "  "},
	}
	for i, body := range cases {
		if w := doJSONRequest(t, router, http.MethodPost, "/send_message", body, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, w.Code)
		}
	}

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/send_message", map[string]any{
		"user_id": userID, "room_id": created.Room.ID + 99, "message": "hi",
	}, nil), http.StatusNotFound)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/send_message", map[string]any{
		"user_id": userID + 99, "room_id": created.Room.ID, "message": "hi",
	}, nil), http.StatusNotFound)
}

func TestSendMessageGeneratorFailures(t *testing.T) {
	gen := &stubGenerator{err: worker.ErrDispatcherBusy}
	router, _, chatService := newTestServer(t, gen)
	userID, authHeader := loginAs(t, router, "a@x.com", "Alice", "English")
	w := doJSONRequest(t, router, http.MethodPost, "/api/rooms",
		map[string]string{"name": "Practice"}, authHeader)
	assertStatus(t, w, http.StatusCreated)
	var created struct {
		Room models.Room `json:"room"`
	}
	decodeJSON(t, w.Body.Bytes(), &created)

	body := map[string]any{"user_id": userID, "room_id": created.Room.ID, "message": "hi"}
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/send_message", body, nil), http.StatusTooManyRequests)

	gen.err = context.DeadlineExceeded
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/send_message", body, nil), http.StatusBadGateway)

	// Failed turns still appended the user message, never a bot one.
	history, err := chatService.History(context.Background(), created.Room.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, m := range history {
		if m.Role == models.RoleBot {
			t.Fatalf("bot entry logged for failed generation: %+v", m)
		}
	}
}

func TestVocabEndpointsAndTranslatedHistory(t *testing.T) {
	router, db, _ := newTestServer(t, &stubGenerator{reply: "kia ora koutou"})
	userID, authHeader := loginAs(t, router, "a@x.com", "Alice", "Japanese")

	// Vocab requires a selected room.
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/vocab",
		map[string]string{"word": "kia"}, authHeader), http.StatusBadRequest)

	w := doJSONRequest(t, router, http.MethodPost, "/api/rooms",
		map[string]any{"name": "Kōrero", "language": "Maori"}, authHeader)
	assertStatus(t, w, http.StatusCreated)
	var created struct {
		Room models.Room `json:"room"`
	}
	decodeJSON(t, w.Body.Bytes(), &created)

	for _, word := range []string{"kia", "ora", "koutou"} {
		assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/vocab",
			map[string]string{"word": word}, authHeader), http.StatusCreated)
	}
	// Repeat save is a no-op.
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/vocab",
		map[string]string{"word": "kia"}, authHeader), http.StatusOK)

	w = doJSONRequest(t, router, http.MethodGet, "/api/vocab", nil, authHeader)
	assertStatus(t, w, http.StatusOK)
	var vocabBody struct {
		Vocab    []models.VocabEntry `json:"vocab"`
		Language string              `json:"language"`
	}
	decodeJSON(t, w.Body.Bytes(), &vocabBody)
	if len(vocabBody.Vocab) != 3 || vocabBody.Language != "Maori" {
		t.Fatalf("unexpected vocab response: %s", w.Body.String())
	}

	// One entry gains a real gloss; the rest stay empty.
	if _, err := db.Exec(`UPDATE vocab SET target_word = 'hello' WHERE source_word = 'kia'`); err != nil {
		t.Fatalf("update gloss: %v", err)
	}

	// Run a turn so the room has a bot reply to decorate.
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/send_message", map[string]any{
		"user_id": userID, "room_id": created.Room.ID, "message": "hello",
	}, nil), http.StatusOK)

	w = doJSONRequest(t, router, http.MethodGet,
		"/api/rooms/"+strconv.FormatInt(created.Room.ID, 10)+"/messages?translate=1", nil, authHeader)
	assertStatus(t, w, http.StatusOK)
	var histBody struct {
		Messages []struct {
			Role    models.Role `json:"role"`
			Content string      `json:"content"`
			Display string      `json:"display"`
		} `json:"messages"`
	}
	decodeJSON(t, w.Body.Bytes(), &histBody)
	if len(histBody.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(histBody.Messages))
	}
	user, bot := histBody.Messages[0], histBody.Messages[1]
	if user.Display != "" {
		t.Fatalf("user message must not be decorated: %q", user.Display)
	}
	wantDisplay := "kia ora koutou _(gloss: hello ora koutou)_"
	if bot.Display != wantDisplay {
		t.Fatalf("display mismatch:\n got %q\nwant %q", bot.Display, wantDisplay)
	}
	if bot.Content != "kia ora koutou" {
		t.Fatalf("stored content decorated: %q", bot.Content)
	}

	// Decoration off.
	w = doJSONRequest(t, router, http.MethodGet,
		"/api/rooms/"+strconv.FormatInt(created.Room.ID, 10)+"/messages?translate=0", nil, authHeader)
	assertStatus(t, w, http.StatusOK)
	histBody.Messages = nil
	decodeJSON(t, w.Body.Bytes(), &histBody)
	if histBody.Messages[1].Display != "" {
		t.Fatalf("expected no decoration with translate=0")
	}
}

func TestSessionTranslationToggleAndLogout(t *testing.T) {
	router, _, _ := newTestServer(t, &stubGenerator{})
	_, authHeader := loginAs(t, router, "a@x.com", "Alice", "English")

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/session/translation",
		map[string]any{"enabled": false}, authHeader), http.StatusNoContent)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/session/translation",
		map[string]any{}, authHeader), http.StatusBadRequest)

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/logout", nil, authHeader), http.StatusNoContent)
	// The token is gone.
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/vocab", nil, authHeader), http.StatusUnauthorized)
}
