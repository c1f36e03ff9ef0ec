package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/classpadhq/classpad/backend/internal/auth"
	"github.com/classpadhq/classpad/backend/internal/config"
	"github.com/classpadhq/classpad/backend/internal/firepads"
	"github.com/classpadhq/classpad/backend/internal/roster"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorContextKey = "classpad_actor"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingPadService       = errors.New("firepad service dependency required")
	errMissingRosterService    = errors.New("roster service dependency required")
)

// SessionValidator checks the session cookie and returns the verified identity.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the collaboration API handler.
type Dependencies struct {
	SessionValidator SessionValidator
	PadService       *firepads.Service
	RosterService    *roster.Service
	Realtime         config.RealtimeConfig
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router for the collaboration API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.PadService == nil {
		return nil, errMissingPadService
	}
	if deps.RosterService == nil {
		return nil, errMissingRosterService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions: deps.SessionValidator,
		pads:     deps.PadService,
		roster:   deps.RosterService,
		realtime: deps.Realtime,
		logger:   logger,
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/pads", handler.handleIndex)
	protected.POST("/pads", handler.handleCreatePad)
	protected.GET("/pads/:padID", handler.handlePadDetail)
	protected.POST("/pads/:padID/collaborators", handler.handleAddCollaborator)
	protected.POST("/pads/:padID/classes/:classID", handler.handleAddClass)
	protected.DELETE("/pads/:padID/collaborators/:userID", handler.handleRemoveCollaborator)
	protected.DELETE("/pads/:padID", handler.handleDeletePad)
	protected.DELETE("/users/:userID/records", handler.handlePurgeUser)

	return router, nil
}

type httpHandler struct {
	sessions SessionValidator
	pads     *firepads.Service
	roster   *roster.Service
	realtime config.RealtimeConfig
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		h.logger.Warn("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(actorContextKey, firepads.Actor{ID: claims.UserID, Username: claims.Username})
	c.Next()
}

func (h *httpHandler) actor(c *gin.Context) (firepads.Actor, bool) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return firepads.Actor{}, false
	}
	actor, ok := value.(firepads.Actor)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return firepads.Actor{}, false
	}
	return actor, true
}

type padPayload struct {
	ID               int64  `json:"id"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	OwnerID          int64  `json:"owner_id"`
	RealtimeKey      string `json:"realtime_key"`
}

type userPayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type collaboratorPayload struct {
	CollabID int64       `json:"collab_id"`
	User     userPayload `json:"user"`
}

type padViewPayload struct {
	Pad           padPayload            `json:"pad"`
	Owner         *userPayload          `json:"owner"`
	Collaborators []collaboratorPayload `json:"collaborators"`
}

type collaborationViewPayload struct {
	CollabID      int64                 `json:"collab_id"`
	Pad           padPayload            `json:"pad"`
	Owner         *userPayload          `json:"owner"`
	Collaborators []collaboratorPayload `json:"collaborators"`
}

func toPadPayload(pad firepads.Firepad) padPayload {
	return padPayload{
		ID:               pad.ID,
		CreatedAtSeconds: pad.Timestamp.Unix(),
		OwnerID:          pad.OwnerID,
		RealtimeKey:      pad.RealtimeKey,
	}
}

func toUserPayload(user *roster.User) *userPayload {
	if user == nil {
		return nil
	}
	return &userPayload{ID: user.ID, Username: user.Username}
}

func toCollaboratorPayloads(entries []firepads.CollaboratorEntry) []collaboratorPayload {
	payloads := make([]collaboratorPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, collaboratorPayload{
			CollabID: entry.Collab.ID,
			User:     userPayload{ID: entry.User.ID, Username: entry.User.Username},
		})
	}
	return payloads
}

// handleIndex returns the pads the actor owns and the pads they
// collaborate on.
func (h *httpHandler) handleIndex(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	owned, err := h.pads.Owned(c.Request.Context(), actor.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	collaborating, err := h.pads.Collaborating(c.Request.Context(), actor.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	ownedPayloads := make([]padViewPayload, 0, len(owned))
	for _, view := range owned {
		ownedPayloads = append(ownedPayloads, padViewPayload{
			Pad:           toPadPayload(view.Firepad),
			Owner:         toUserPayload(view.Owner),
			Collaborators: toCollaboratorPayloads(view.Collaborators),
		})
	}
	collabPayloads := make([]collaborationViewPayload, 0, len(collaborating))
	for _, view := range collaborating {
		collabPayloads = append(collabPayloads, collaborationViewPayload{
			CollabID:      view.Collab.ID,
			Pad:           toPadPayload(view.Firepad),
			Owner:         toUserPayload(view.Owner),
			Collaborators: toCollaboratorPayloads(view.Collaborators),
		})
	}

	c.JSON(http.StatusOK, gin.H{"firepads": ownedPayloads, "collabs": collabPayloads})
}

func (h *httpHandler) handleCreatePad(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	pad, err := h.pads.Create(c.Request.Context(), actor.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPadPayload(pad))
}

func (h *httpHandler) handlePadDetail(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	padID, ok := parseIDParam(c, "padID")
	if !ok {
		return
	}

	if !h.pads.HasAccess(c.Request.Context(), actor, padID) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "permission_denied",
			"message": "You do not have permission to access this pad. Please ask the owner to add you as a collaborator.",
		})
		return
	}

	owner, err := h.pads.Owner(c.Request.Context(), padID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	entries, err := h.pads.Collaborators(c.Request.Context(), padID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	classes, err := h.roster.TeacherClasses(c.Request.Context(), actor.ID)
	if err != nil {
		h.logger.Error("teacher class lookup failed", zap.Error(err), zap.Int64("user_id", actor.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	isAdmin, err := h.roster.IsAdmin(c.Request.Context(), actor.Username)
	if err != nil {
		h.logger.Error("role lookup failed", zap.Error(err), zap.String("username", actor.Username))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	classPayloads := make([]gin.H, 0, len(classes))
	for _, class := range classes {
		classPayloads = append(classPayloads, gin.H{"id": class.ID, "label": class.Label})
	}

	c.JSON(http.StatusOK, gin.H{
		"pad_id":        padID,
		"owner":         toUserPayload(owner),
		"collaborators": toCollaboratorPayloads(entries),
		"is_owner":      h.pads.IsOwner(c.Request.Context(), actor, padID),
		"is_admin":      isAdmin,
		"classes":       classPayloads,
		"realtime":      h.realtime,
	})
}

type addCollaboratorPayload struct {
	UserID int64 `json:"user_id"`
}

func (h *httpHandler) handleAddCollaborator(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	padID, ok := parseIDParam(c, "padID")
	if !ok {
		return
	}

	var request addCollaboratorPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.pads.AddCollaborator(c.Request.Context(), actor, request.UserID, padID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": string(result)})
}

func (h *httpHandler) handleAddClass(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	padID, ok := parseIDParam(c, "padID")
	if !ok {
		return
	}
	classID, ok := parseIDParam(c, "classID")
	if !ok {
		return
	}

	added, err := h.pads.AddClass(c.Request.Context(), actor, classID, padID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

func (h *httpHandler) handleRemoveCollaborator(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	padID, ok := parseIDParam(c, "padID")
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "userID")
	if !ok {
		return
	}

	if err := h.pads.RemoveCollaborator(c.Request.Context(), actor, userID, padID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "removed"})
}

func (h *httpHandler) handleDeletePad(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	padID, ok := parseIDParam(c, "padID")
	if !ok {
		return
	}

	if err := h.pads.Delete(c.Request.Context(), actor, padID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "deleted"})
}

// handlePurgeUser removes all collaboration records for a departing
// user. Admin only; invoked by the account-removal flow.
func (h *httpHandler) handlePurgeUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "userID")
	if !ok {
		return
	}

	isAdmin, err := h.roster.IsAdmin(c.Request.Context(), actor.Username)
	if err != nil {
		h.logger.Error("role lookup failed", zap.Error(err), zap.String("username", actor.Username))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission_denied"})
		return
	}

	if err := h.pads.PurgeUser(c.Request.Context(), userID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "purged"})
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return 0, false
	}
	return value, true
}

// writeServiceError maps the firepad error taxonomy onto HTTP statuses.
// Persistence faults stay generic; the service error code is included
// for operators, the cause is not.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, firepads.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission_denied"})
	case errors.Is(err, firepads.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, firepads.ErrCollaboratorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "collaborator_not_found"})
	case errors.Is(err, firepads.ErrAmbiguousCollaborator):
		c.JSON(http.StatusConflict, gin.H{"error": "ambiguous_collaborator"})
	default:
		h.logger.Error("firepad operation failed", zap.Error(err))
		var serviceErr *firepads.ServiceError
		if errors.As(err, &serviceErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": serviceErr.Code()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
