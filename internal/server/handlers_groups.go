package server

import (
	"encoding/json"
	"io"
	"net/http"

	"caretalk/pkg/domain"
)

type createGroupRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	UserIDs     []int64 `json:"userIds"`
}

type addParticipantsRequest struct {
	UserIDs []int64 `json:"userIds"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req createGroupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body")
		return
	}
	group, err := s.app.CreateGroup(user, req.Name, req.Description, req.UserIDs)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"group": group})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request, user domain.User) {
	groupID, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	group, err := s.app.GetGroup(user, groupID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"group": group})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request, user domain.User) {
	groups, total, err := s.app.ListGroups(user, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups, "total": total})
}

func (s *Server) handleAddParticipants(w http.ResponseWriter, r *http.Request, user domain.User) {
	groupID, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	var req addParticipantsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body")
		return
	}
	added, err := s.app.AddParticipants(user, groupID, req.UserIDs)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "users added successfully",
		"addedUsers": added,
	})
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request, user domain.User) {
	groupID, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.app.RemoveParticipant(user, groupID, userID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user removed from group"})
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request, user domain.User) {
	groupID, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.app.DeleteGroup(user, groupID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "group deleted"})
}
