package kernel

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.deps.Agent.Chat(r.Context(), domain.ConversationID(req.ConversationID), req.Message)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("chat failed", "conversation_id", req.ConversationID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.deps.Convs.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return
	}
	limit := 50
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	convID := domain.ConversationID(id)
	if _, err := s.deps.Convs.GetConversation(r.Context(), convID); err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	msgs, err := s.deps.Convs.GetMessages(r.Context(), convID, limit)
	if err != nil {
		s.logger.Error("failed to list messages", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleDeleteConversation drops the conversation and stops polling its pending videos.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return
	}
	convID := domain.ConversationID(id)
	if _, err := s.deps.Convs.GetConversation(r.Context(), convID); err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cancelled := 0
	if s.deps.Videos != nil {
		cancelled = s.deps.Videos.CancelConversation(convID)
	}
	if err := s.deps.Convs.DeleteConversation(r.Context(), convID); err != nil {
		s.logger.Error("failed to delete conversation", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "deleted",
		"conversation_id": id,
		"cancelled_jobs":  cancelled,
	})
}

// pathParam binds a simple-style path parameter, writing a 400 on failure.
func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, mux.Vars(r)[name], &v, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return v, true
}
