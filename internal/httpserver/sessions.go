package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-screening/core/sessions"
)

type StartSessionResponse struct {
	SessionID      string `json:"session_id"`
	WelcomeMessage string `json:"welcome_message"`
	WebSocketPath  string `json:"websocket_path"`
}

type TurnResponse struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int       `json:"seq"`
	Fallback  bool      `json:"fallback,omitempty"`
}

type SessionResponse struct {
	ID          string         `json:"session_id"`
	StageIndex  int            `json:"stage_index"`
	StageCount  int            `json:"stage_count"`
	StageName   string         `json:"stage_name,omitempty"`
	Status      string         `json:"status"`
	Turns       []TurnResponse `json:"turns"`
	AvatarReady bool           `json:"avatar_ready"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (srv *HTTPServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": ServiceName,
	})
}

func (srv *HTTPServer) startSession(c *gin.Context) {
	session, err := srv.pipeline.StartSession(c.Request.Context())
	if errors.Is(err, sessions.ErrCapacityReached) {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "too many active sessions, try again later"})
		return
	}
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "failed to start session", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to start session"})
		return
	}

	response := StartSessionResponse{
		SessionID:     session.ID,
		WebSocketPath: "/ws/" + session.ID,
	}
	if stage, err := srv.catalog.StageAt(0); err == nil {
		response.WelcomeMessage = stage.Prompt
	}
	c.JSON(http.StatusCreated, response)
}

func (srv *HTTPServer) getSession(c *gin.Context) {
	session, err := srv.pipeline.Session(c.Param("session_id"))
	if errors.Is(err, sessions.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	response, err := srv.toSessionResponse(session)
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "failed to map session", "session_id", session.ID, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to read session"})
		return
	}
	c.JSON(http.StatusOK, response)
}

func (srv *HTTPServer) endSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := srv.pipeline.EndSession(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "ended"})
}

func (srv *HTTPServer) serveWebSocket(c *gin.Context) {
	srv.sockets.ServeWebSocket(c.Writer, c.Request, c.Param("session_id"))
}

func (srv *HTTPServer) toSessionResponse(session sessions.Session) (SessionResponse, error) {
	var response SessionResponse
	if err := copier.Copy(&response, &session); err != nil {
		return SessionResponse{}, err
	}

	response.StageCount = srv.catalog.Count()
	response.AvatarReady = session.Avatar != nil
	if stage, err := srv.catalog.StageAt(session.StageIndex); err == nil {
		response.StageName = stage.Name
	}
	if response.Turns == nil {
		response.Turns = []TurnResponse{}
	}
	return response, nil
}
