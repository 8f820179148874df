package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"support-chat/backend/internal/models"
	"support-chat/backend/internal/service"
	apperrors "support-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ChatHandler serves the visitor and operator chat endpoints
type ChatHandler struct {
	coord       *service.Coordinator
	attachments service.AttachmentStore
	maxUpload   int64
}

// NewChatHandler creates a chat handler. attachments may be nil to disable uploads.
func NewChatHandler(coord *service.Coordinator, attachments service.AttachmentStore, maxUpload int64) *ChatHandler {
	return &ChatHandler{coord: coord, attachments: attachments, maxUpload: maxUpload}
}

// RegisterRoutes mounts the chat routes on rg. operatorOnly guards operator actions.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup, operatorOnly gin.HandlerFunc) {
	chat := rg.Group("/chat")
	{
		chat.GET("/start", h.StartChat)
		chat.POST("/start", h.StartChat)

		chat.GET("/:chat_id", h.GetChat)
		chat.POST("/:chat_id/message", h.SendMessage)
		chat.POST("/:chat_id/reply", operatorOnly, h.Reply)
		chat.POST("/:chat_id/close", operatorOnly, h.CloseChat)

		chat.POST("/:chat_id/typing", h.SetTyping)
		chat.GET("/:chat_id/typing", h.GetTyping)
		chat.POST("/:chat_id/heartbeat", h.Heartbeat)
		chat.GET("/:chat_id/online", h.Online)
		chat.POST("/:chat_id/upload", h.Upload)
	}

	rg.GET("/chats", operatorOnly, h.ListChats)
}

type messageRequest struct {
	Text          *string `json:"text"`
	AttachmentURL *string `json:"attachment_url"`
	// FileURL is accepted as an alias of AttachmentURL
	FileURL *string `json:"file_url"`
}

func (r messageRequest) payload() models.MessagePayload {
	attachment := r.AttachmentURL
	if attachment == nil {
		attachment = r.FileURL
	}
	return models.MessagePayload{Text: r.Text, Attachment: attachment}
}

type typingRequest struct {
	Role     string `json:"role"`
	IsTyping bool   `json:"is_typing"`
}

type heartbeatRequest struct {
	Role string `json:"role"`
}

type sessionResponse struct {
	*models.ChatSession
	Messages []models.Message `json:"messages"`
}

func chatID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("chat_id"), 10, 64)
	if err != nil || id == 0 {
		abortWithError(c, apperrors.NewBadRequestError(CodeInvalidChatID, "chat_id must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}

func role(c *gin.Context, raw string, allowEmpty bool) (models.Role, bool) {
	if allowEmpty && strings.TrimSpace(raw) == "" {
		return "", true
	}
	r, ok := models.ParseRole(raw)
	if !ok {
		abortWithError(c, apperrors.NewBadRequestError(CodeInvalidRole, "role must be visitor or operator"))
		return "", false
	}
	return r, true
}

// bindJSON decodes the body into dst. An empty body leaves dst zero.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, apperrors.NewBadRequestError(CodeInvalidRequest, "Malformed JSON body").Wrap(err))
		return false
	}
	return true
}

// StartChat creates a new anonymous visitor and chat session
func (h *ChatHandler) StartChat(c *gin.Context) {
	res, err := h.coord.StartSession(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SendMessage stores a visitor message and alerts operators
func (h *ChatHandler) SendMessage(c *gin.Context) {
	h.appendMessage(c, models.SenderVisitor)
}

// Reply stores an operator message
func (h *ChatHandler) Reply(c *gin.Context) {
	h.appendMessage(c, models.SenderOperator)
}

func (h *ChatHandler) appendMessage(c *gin.Context, sender models.Sender) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req messageRequest
	if !bindJSON(c, &req) {
		return
	}

	var (
		msg *models.Message
		err error
	)
	if sender == models.SenderOperator {
		msg, err = h.coord.AppendOperatorMessage(c.Request.Context(), id, req.payload())
	} else {
		msg, err = h.coord.AppendVisitorMessage(c.Request.Context(), id, req.payload())
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": msg})
}

// GetChat returns the session and its full history
func (h *ChatHandler) GetChat(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	view, err := h.coord.FetchSession(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ChatSession: view.Session, Messages: view.Messages})
}

// CloseChat deactivates a session
func (h *ChatHandler) CloseChat(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	if err := h.coord.CloseSession(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListChats returns the operator session overview
func (h *ChatHandler) ListChats(c *gin.Context) {
	activeOnly, err := strconv.ParseBool(c.DefaultQuery("active", "false"))
	if err != nil {
		abortWithError(c, apperrors.NewBadRequestError(CodeInvalidRequest, "active must be a boolean"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 1 {
		abortWithError(c, apperrors.NewBadRequestError(CodeInvalidRequest, "limit must be a positive integer"))
		return
	}
	limit = min(limit, maxListLimit)

	sessions, err := h.coord.ListSessions(c.Request.Context(), activeOnly, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// SetTyping raises or clears the typing flag
func (h *ChatHandler) SetTyping(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req typingRequest
	if !bindJSON(c, &req) {
		return
	}
	r, ok := role(c, req.Role, false)
	if !ok {
		return
	}
	h.coord.SetTyping(c.Request.Context(), id, r, req.IsTyping)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetTyping reports whether the given role (or anyone) is typing
func (h *ChatHandler) GetTyping(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	r, ok := role(c, c.Query("role"), true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_typing": h.coord.GetTyping(c.Request.Context(), id, r)})
}

// Heartbeat marks a party as present
func (h *ChatHandler) Heartbeat(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req heartbeatRequest
	if !bindJSON(c, &req) {
		return
	}
	r, ok := role(c, req.Role, false)
	if !ok {
		return
	}
	h.coord.Heartbeat(c.Request.Context(), id, r)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Online reports which parties are currently online
func (h *ChatHandler) Online(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.coord.OnlineStatus(c.Request.Context(), id))
}

// Upload stores an attachment and returns its URL for a following message
func (h *ChatHandler) Upload(c *gin.Context) {
	if _, ok := chatID(c); !ok {
		return
	}
	if h.attachments == nil {
		abortWithError(c, apperrors.NewError(http.StatusNotImplemented, "UPLOADS_DISABLED", "File uploads are disabled"))
		return
	}
	if h.maxUpload > 0 {
		// room for the multipart envelope; the store enforces the exact limit
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, service.ErrAttachmentTooLarge)
			return
		}
		abortWithError(c, apperrors.NewBadRequestError(CodeInvalidRequest, "multipart field \"file\" is required").Wrap(err))
		return
	}
	defer file.Close()

	url, err := h.attachments.Store(c.Request.Context(), file, header.Filename)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
