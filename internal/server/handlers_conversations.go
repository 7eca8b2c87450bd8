package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"caretalk/pkg/domain"
)

type createDirectRequest struct {
	UserID int64 `json:"userId"`
}

type sendMessageRequest struct {
	Content     string             `json:"content"`
	MessageType domain.MessageType `json:"messageType"`
	Metadata    json.RawMessage    `json:"metadata"`
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	users, err := s.app.SearchUsers(r.URL.Query().Get("query"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleCreateDirect(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req createDirectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body")
		return
	}
	conv, err := s.app.GetOrCreateDirect(user, req.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, user domain.User) {
	summaries, err := s.app.ListConversations(
		user,
		r.URL.Query().Get("type"),
		queryInt(r, "limit", 0),
		queryInt(r, "offset", 0),
	)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, user domain.User) {
	conversationID, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	messages, hasMore, err := s.app.ListMessages(
		user,
		conversationID,
		queryInt(r, "limit", 0),
		queryInt64(r, "before"),
		queryInt64(r, "after"),
	)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "hasMore": hasMore})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	conversationID, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if s.messageLimiter != nil && !s.messageLimiter.Allow(fmt.Sprintf("user:%d", user.ID)) {
		s.audit(r, "messaging.send", "rate_limited", "user_id", user.ID)
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many messages, slow down")
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body")
		return
	}
	msg, err := s.app.SendMessage(user, conversationID, req.Content, req.MessageType, req.Metadata)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if _, err := pathID(r, "id"); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	messageID, err := pathID(r, "messageId")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.app.DeleteMessage(user, messageID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, user domain.User) {
	conversationID, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	readAt, err := s.app.MarkRead(user, conversationID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "conversation marked as read",
		"lastReadAt": readAt,
	})
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request, user domain.User) {
	conversationID, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if s.attachments == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "attachment storage is not configured")
		return
	}
	if err := s.app.EnsureParticipant(user, conversationID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxAttachmentBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "file field is required")
		return
	}
	defer file.Close()
	key, url, err := s.attachments.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": url})
}
