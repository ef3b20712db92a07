// Package agent exposes the sync orchestrator over a local HTTP control
// surface. It is the seam the UI layer talks through: every state change
// flows into the orchestrator's entry points, never into the snapshot
// cache or the Organization Store directly.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"turnhub/api/internal/orgdoc"
	"turnhub/api/internal/syncer"
)

// TokenSetter receives the server bearer token handed over at login so
// fetches and pushes on behalf of this session are authorized.
type TokenSetter interface {
	SetToken(token string)
}

type HTTPServer struct {
	orchestrator *syncer.Orchestrator
	tokens       TokenSetter
}

// NewHTTPServer builds the control surface. tokens may be nil when the
// remote needs no authorization (tests).
func NewHTTPServer(orchestrator *syncer.Orchestrator, tokens TokenSetter) *HTTPServer {
	return &HTTPServer{orchestrator: orchestrator, tokens: tokens}
}

func (s *HTTPServer) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodGet && r.URL.Path == "/agent/status" {
		writeJSON(w, http.StatusOK, map[string]any{
			"state":       s.orchestrator.State(),
			"pendingPush": s.orchestrator.PendingPush(),
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/agent/user" {
		user := s.orchestrator.User()
		if user == nil {
			writeError(w, http.StatusNotFound, "no session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": json.RawMessage(user)})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/agent/login" {
		var body struct {
			User         json.RawMessage  `json:"user"`
			Organization *orgdoc.Document `json:"organization"`
			Token        string           `json:"token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if s.tokens != nil {
			s.tokens.SetToken(body.Token)
		}
		if err := s.orchestrator.Login(body.User, body.Organization); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "orgId": s.orchestrator.OrgID()})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/agent/logout" {
		s.orchestrator.Logout()
		if s.tokens != nil {
			s.tokens.SetToken("")
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPut && r.URL.Path == "/agent/settings" {
		var settings json.RawMessage
		if err := decodeBody(r, &settings); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.orchestrator.UpdateSettings(settings); err != nil {
			writeMutationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 3 && parts[0] == "agent" && parts[1] == "state" {
		collection := parts[2]

		if r.Method == http.MethodGet {
			entities, err := s.orchestrator.Collection(collection)
			if err != nil {
				writeMutationError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{collection: entities})
			return
		}

		if r.Method == http.MethodPut {
			var entities []orgdoc.Entity
			if err := decodeBody(r, &entities); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if err := s.orchestrator.OnMutate(collection, entities); err != nil {
				writeMutationError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}

		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeError(w, http.StatusNotFound, "not found")
}

func writeMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, syncer.ErrUnknownCollection):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, syncer.ErrNoSession):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return fmt.Errorf("empty body")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
