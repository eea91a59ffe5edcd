package api

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"lingochat/internal/gloss"
	"lingochat/internal/models"
	"lingochat/internal/service/ai"
	"lingochat/internal/service/chat"
	"lingochat/internal/session"
	"lingochat/internal/worker"
)

const (
	sessionStateContextKey = "session_state"
	sessionTokenContextKey = "session_token"
	authHeaderName         = "Authorization"
	authCookieName         = "session_token"
)

// Handler wires HTTP routes to the chat service, the reply generator,
// and the session store.
type Handler struct {
	chat      *chat.Service
	generator ai.Generator
	annotator *gloss.Annotator
	sessions  *session.Store
}

// NewHandler constructs a Handler instance.
func NewHandler(chatService *chat.Service, generator ai.Generator, sessions *session.Store) *Handler {
	return &Handler{
		chat:      chatService,
		generator: generator,
		annotator: gloss.NewAnnotator(chatService),
		sessions:  sessions,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/send_message", h.sendMessage)

	api := router.Group("/api")
	api.POST("/login", h.login)
	api.GET("/rooms", h.listRooms)

	authed := api.Group("")
	authed.Use(h.requireSession())
	authed.POST("/rooms", h.createRoom)
	authed.POST("/rooms/select", h.selectRoom)
	authed.GET("/rooms/:room_id/messages", h.roomMessages)
	authed.POST("/vocab", h.addVocab)
	authed.GET("/vocab", h.listVocab)
	authed.POST("/session/translation", h.setTranslation)
	authed.POST("/logout", h.logout)
}

// requireSession validates the bearer token and stores the session
// state in the gin context.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := h.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		state, err := h.sessions.Get(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Set(sessionStateContextKey, state)
		c.Set(sessionTokenContextKey, token)
		c.Next()
	}
}

func (h *Handler) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(authHeaderName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(authCookieName); err == nil && token != "" {
		return token
	}
	return ""
}

func (h *Handler) sessionState(c *gin.Context) (*session.State, string, bool) {
	val, ok := c.Get(sessionStateContextKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return nil, "", false
	}
	state, ok := val.(*session.State)
	if !ok || !state.Identified() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return nil, "", false
	}
	token, _ := c.Get(sessionTokenContextKey)
	tokenStr, _ := token.(string)
	return state, tokenStr, true
}

type loginRequest struct {
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	MotherTongue string `json:"mother_tongue"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.chat.ResolveOrCreateUser(c.Request.Context(), req.Email, req.DisplayName, req.MotherTongue)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.sessions.Create(c.Request.Context(), &session.State{
		UserID:          user.ID,
		DisplayName:     user.DisplayName,
		ShowTranslation: true,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create session failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            user.ID,
		"email":         user.Email,
		"display_name":  user.DisplayName,
		"mother_tongue": user.MotherTongue,
		"session_token": token,
	})
}

func (h *Handler) listRooms(c *gin.Context) {
	rooms, err := h.chat.ListRooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rooms == nil {
		rooms = make([]models.Room, 0)
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

type createRoomRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

func (h *Handler) createRoom(c *gin.Context) {
	state, token, ok := h.sessionState(c)
	if !ok {
		return
	}
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, err := h.chat.CreateRoom(c.Request.Context(), state.UserID, req.Name, req.Language)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Creating a room also selects it for the session.
	state.RoomID = room.ID
	state.RoomLanguage = room.Language
	if err := h.sessions.Save(c.Request.Context(), token, state); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save session failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

type selectRoomRequest struct {
	Name string `json:"name"`
}

func (h *Handler) selectRoom(c *gin.Context) {
	state, token, ok := h.sessionState(c)
	if !ok {
		return
	}
	var req selectRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room name is required"})
		return
	}
	rooms, err := h.chat.ListRooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	room := chat.FindRoomByName(rooms, req.Name)
	if room == nil {
		// The session keeps whatever selection it had.
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	state.RoomID = room.ID
	state.RoomLanguage = room.Language
	if err := h.sessions.Save(c.Request.Context(), token, state); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save session failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (h *Handler) roomMessages(c *gin.Context) {
	state, _, ok := h.sessionState(c)
	if !ok {
		return
	}
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	room, err := h.chat.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	messages, err := h.chat.History(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	translate := state.ShowTranslation
	if q := c.Query("translate"); q != "" {
		translate = q == "1" || q == "true"
	}

	type renderedMessage struct {
		*models.Message
		Display string `json:"display,omitempty"`
	}
	rendered := make([]renderedMessage, 0, len(messages))
	for _, m := range messages {
		rm := renderedMessage{Message: m}
		// Decoration is display-only; the stored entry is never touched.
		if translate && m.Role == models.RoleBot {
			display, err := h.annotator.Annotate(c.Request.Context(), m.Content, room.Language)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			rm.Display = display
		}
		rendered = append(rendered, rm)
	}
	c.JSON(http.StatusOK, gin.H{
		"room":     room,
		"messages": rendered,
	})
}

type sendMessageRequest struct {
	UserID  int64  `json:"user_id"`
	RoomID  int64  `json:"room_id"`
	Message string `json:"message"`
}

// sendMessage runs one chat turn: append the user message, generate a
// reply, append the bot message, return the reply.
func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if req.RoomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room_id is required"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if _, err := h.chat.GetUser(c.Request.Context(), req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// If the user-message append fails the turn aborts before any
	// model invocation.
	if _, err := h.chat.AppendMessage(c.Request.Context(), req.RoomID, models.RoleUser, req.Message, &req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.generator.GenerateReply(c.Request.Context(), req.Message)
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	// The reply is still returned when this append fails; the log is
	// then missing the bot entry, which is an accepted limitation.
	if _, err := h.chat.AppendMessage(c.Request.Context(), req.RoomID, models.RoleBot, reply, nil); err != nil {
		log.Printf("append bot message for room %d failed: %v", req.RoomID, err)
	}

	c.JSON(http.StatusOK, gin.H{"bot_response": reply})
}

type addVocabRequest struct {
	Word string `json:"word"`
}

func (h *Handler) addVocab(c *gin.Context) {
	state, _, ok := h.sessionState(c)
	if !ok {
		return
	}
	if !state.RoomSelected() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "select a room first"})
		return
	}
	var req addVocabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	entry, created, err := h.chat.AddVocab(c.Request.Context(), state.UserID, req.Word, state.RoomLanguage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"saved": false})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"saved": true, "entry": entry})
}

func (h *Handler) listVocab(c *gin.Context) {
	state, _, ok := h.sessionState(c)
	if !ok {
		return
	}
	if !state.RoomSelected() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "select a room first"})
		return
	}
	entries, err := h.chat.ListVocab(c.Request.Context(), state.UserID, state.RoomLanguage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vocab": entries, "language": state.RoomLanguage})
}

type translationRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) setTranslation(c *gin.Context) {
	state, token, ok := h.sessionState(c)
	if !ok {
		return
	}
	var req translationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	state.ShowTranslation = *req.Enabled
	if err := h.sessions.Save(c.Request.Context(), token, state); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save session failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) logout(c *gin.Context) {
	_, token, ok := h.sessionState(c)
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
