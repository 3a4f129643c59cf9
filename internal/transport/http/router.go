package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tutor-live-service/internal/app"
	"tutor-live-service/internal/auth"
	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

const identityKey = "identity"

// DoubtAPI is the doubt workflow exposed over REST.
type DoubtAPI interface {
	Submit(ctx context.Context, studentID, content, subject, subcategory string) (domain.Doubt, error)
	Match(ctx context.Context, doubtID string) (domain.MatchResult, error)
	Resolve(ctx context.Context, doubtID, userID string, role domain.Role) (domain.Doubt, error)
	Pending(ctx context.Context) ([]domain.Doubt, error)
	AssignedTo(ctx context.Context, teacherID string) ([]domain.Doubt, error)
	GoOnline(profile domain.TeacherAvailability) error
	GoOffline(teacherID string)
	UpdateRating(teacherID string, rating float64, solvedCount int) error
}

// RoomAPI is the read side of live rooms.
type RoomAPI interface {
	Exists(roomID string) bool
	Snapshot(roomID string) (app.RoomSnapshot, error)
}

// ResultReader looks up published results.
type ResultReader interface {
	GetResult(ctx context.Context, roomID string) (domain.ResultRecord, error)
}

// ChatAPI reads doubt chat history.
type ChatAPI interface {
	History(ctx context.Context, sess app.Session, doubtID string) ([]domain.ChatMessage, error)
}

// RouterDeps wires the router. Results and Chat may be nil.
type RouterDeps struct {
	WS      *WSHandler
	Doubts  DoubtAPI
	Rooms   RoomAPI
	Results ResultReader
	Chat    ChatAPI
	Auth    auth.Authenticator
	Log     zerolog.Logger
}

// NewRouter builds the gin engine serving health, metrics, the websocket
// endpoint and the REST adapter.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.WS != nil {
		router.GET("/ws", gin.WrapF(deps.WS.ServeWS))
	}

	h := &restHandler{doubts: deps.Doubts, rooms: deps.Rooms, results: deps.Results, chat: deps.Chat}
	api := router.Group("/api", authenticate(deps.Auth))
	{
		api.POST("/teachers/online", requireRole(domain.RoleTeacher), h.goOnline)
		api.DELETE("/teachers/online", requireRole(domain.RoleTeacher), h.goOffline)
		api.PUT("/teachers/:id/rating", requireRole(domain.RoleTeacher), requireSelf, h.updateRating)
		api.GET("/teachers/:id/doubts", h.assignedTo)

		api.POST("/doubts", requireRole(domain.RoleStudent), h.submitDoubt)
		api.GET("/doubts/pending", requireRole(domain.RoleTeacher), h.pending)
		api.POST("/doubts/:id/match", h.match)
		api.POST("/doubts/:id/resolve", h.resolve)
		api.GET("/doubts/:id/messages", h.messages)

		api.GET("/rooms/:id/verify", h.verifyRoom)
		api.GET("/rooms/:id", h.room)
		api.GET("/rooms/:id/results", h.getResults)
	}
	return router
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func authenticate(authn auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := authn.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func requireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identityFrom(c).Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "requires role " + string(role)})
			return
		}
		c.Next()
	}
}

// requireSelf only lets a user act on the :id that names them.
func requireSelf(c *gin.Context) {
	if identityFrom(c).UserID != c.Param("id") {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "can only act on your own profile"})
		return
	}
	c.Next()
}

func identityFrom(c *gin.Context) auth.Identity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(auth.Identity)
	return identity
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrDoubtNotPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": http.StatusText(status), "message": message})
}

type restHandler struct {
	doubts  DoubtAPI
	rooms   RoomAPI
	results ResultReader
	chat    ChatAPI
}

type onlineRequest struct {
	Name           string   `json:"name"`
	Rating         float64  `json:"rating" binding:"gte=0,lte=5"`
	SolvedCount    int      `json:"solvedCount" binding:"gte=0"`
	Subject        string   `json:"subject" binding:"required"`
	Subcategories  []string `json:"subcategories"`
	Certifications []string `json:"certifications"`
}

func (h *restHandler) goOnline(c *gin.Context) {
	var req onlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}
	identity := identityFrom(c)
	name := req.Name
	if name == "" {
		name = identity.Name
	}
	profile := domain.TeacherAvailability{
		TeacherID:      identity.UserID,
		Name:           name,
		Rating:         req.Rating,
		SolvedCount:    req.SolvedCount,
		Subject:        req.Subject,
		Subcategories:  req.Subcategories,
		Certifications: req.Certifications,
	}
	if err := h.doubts.GoOnline(profile); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *restHandler) goOffline(c *gin.Context) {
	h.doubts.GoOffline(identityFrom(c).UserID)
	c.Status(http.StatusNoContent)
}

type ratingRequest struct {
	Rating      float64 `json:"rating"`
	SolvedCount int     `json:"solvedCount"`
}

func (h *restHandler) updateRating(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}
	if err := h.doubts.UpdateRating(c.Param("id"), req.Rating, req.SolvedCount); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *restHandler) assignedTo(c *gin.Context) {
	doubts, err := h.doubts.AssignedTo(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doubts": doubts})
}

type doubtRequest struct {
	Content     string `json:"content" binding:"required"`
	Subject     string `json:"subject" binding:"required"`
	Subcategory string `json:"subcategory"`
}

// submitDoubt stores the doubt and matches it right away. An unmatched
// doubt is still created; the client then falls back to the AI answer.
func (h *restHandler) submitDoubt(c *gin.Context) {
	var req doubtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}
	ctx := c.Request.Context()
	doubt, err := h.doubts.Submit(ctx, identityFrom(c).UserID, req.Content, req.Subject, req.Subcategory)
	if err != nil {
		writeError(c, err)
		return
	}
	match, err := h.doubts.Match(ctx, doubt.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"doubt": doubt, "match": match})
}

func (h *restHandler) pending(c *gin.Context) {
	doubts, err := h.doubts.Pending(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doubts": doubts})
}

func (h *restHandler) match(c *gin.Context) {
	match, err := h.doubts.Match(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *restHandler) resolve(c *gin.Context) {
	identity := identityFrom(c)
	doubt, err := h.doubts.Resolve(c.Request.Context(), c.Param("id"), identity.UserID, identity.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doubt)
}

func (h *restHandler) messages(c *gin.Context) {
	if h.chat == nil {
		writeError(c, domain.ErrDoubtNotFound)
		return
	}
	identity := identityFrom(c)
	sess := app.Session{UserID: identity.UserID, Role: identity.Role, Name: identity.Name}
	history, err := h.chat.History(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

func (h *restHandler) verifyRoom(c *gin.Context) {
	roomID := c.Param("id")
	c.JSON(http.StatusOK, domain.RoomVerified{RoomID: roomID, Exists: h.rooms.Exists(roomID)})
}

func (h *restHandler) room(c *gin.Context) {
	snapshot, err := h.rooms.Snapshot(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *restHandler) getResults(c *gin.Context) {
	if h.results == nil {
		writeError(c, domain.ErrResultsNotFound)
		return
	}
	record, err := h.results.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
