package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lifeboard/api/internal/auth"
	"lifeboard/api/internal/authpw"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email" {
		s.handleAuthVerifyEmail(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request" {
		s.handleAuthRequestReset(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password" {
		s.handleAuthResetPassword(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userName": session.UserName, "userId": session.UserID})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  session.Token,
			"refreshToken": session.RefreshToken,
			"userName":     session.UserName,
			"expiresAt":    session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		filterType := strings.TrimSpace(r.URL.Query().Get("type"))
		limit, ok := queryInt(w, r, "limit", 20)
		if !ok {
			return
		}
		offset, ok := queryInt(w, r, "offset", 0)
		if !ok {
			return
		}
		payload, err := s.service.Search(r.Context(), q, filterType, session.UserID, limit, offset)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.URL.Path == "/api/teams" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListTeams(r.Context(), session.UserID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateTeam(r.Context(), body.Name, session.UserID)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/chat/unread" {
		payload, err := s.service.UnreadCounts(r.Context(), session.UserID)
		s.respond(w, payload, err)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "teams" {
		s.handleTeam(w, r, session, parts[2], parts[3:])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "roadmaps" {
		s.handleRoadmaps(w, r, session, parts[2:])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" {
		switch parts[1] {
		case "tasks":
			s.handleTasks(w, r, session, parts[2:])
			return
		case "habits":
			s.handleHabits(w, r, session, parts[2:])
			return
		case "goals":
			s.handleGoals(w, r, session, parts[2:])
			return
		case "notes":
			s.handleNotes(w, r, session, parts[2:])
			return
		case "resources":
			s.handleResources(w, r, session, parts[2:])
			return
		case "transactions":
			s.handleTransactions(w, r, session, parts[2:])
			return
		case "paths":
			s.handlePaths(w, r, session, parts[2:])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTeam(w http.ResponseWriter, r *http.Request, session Session, teamID string, rest []string) {
	if len(rest) == 1 && rest[0] == "join" && r.Method == http.MethodPost {
		payload, err := s.service.JoinTeam(r.Context(), teamID, session.UserID)
		s.respond(w, payload, err)
		return
	}

	if len(rest) == 1 && rest[0] == "projects" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListTeamProjects(r.Context(), teamID, session.UserID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateProject(r.Context(), teamID, body.Name, session.UserID)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 2 && rest[0] == "chat" {
		switch rest[1] {
		case "messages":
			switch r.Method {
			case http.MethodGet:
				projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
				limit, ok := queryInt(w, r, "limit", 50)
				if !ok {
					return
				}
				payload, err := s.service.ListChatMessages(r.Context(), teamID, projectID, session.UserID, limit)
				s.respond(w, payload, err)
			case http.MethodPost:
				var body struct {
					ProjectID string `json:"projectId"`
					Body      string `json:"body"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.PostMessage(r.Context(), teamID, body.ProjectID, session.UserID, body.Body)
				s.respond(w, payload, err)
			default:
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			}
			return
		case "share":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			var body struct {
				ProjectID string `json:"projectId"`
				Kind      string `json:"kind"`
				ItemID    string `json:"itemId"`
				Body      string `json:"body"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.ShareToChat(r.Context(), teamID, body.ProjectID, session.UserID, body.Kind, body.ItemID, body.Body)
			s.respond(w, payload, err)
			return
		case "read":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			if err := s.service.MarkTeamRead(r.Context(), teamID, session.UserID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		case "shared":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			payload, err := s.service.ListSharedItems(r.Context(), teamID, session.UserID)
			s.respond(w, payload, err)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRoadmaps(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListUserRoadmaps(r.Context(), session.UserID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Title       string      `json:"title"`
				Description string      `json:"description"`
				Steps       []StepInput `json:"steps"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateRoadmap(r.Context(), session.UserID, body.Title, body.Description, body.Steps)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	roadmapID := rest[0]

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ResolveRoadmapView(r.Context(), roadmapID, session.UserID)
			s.respond(w, payload, err)
		case http.MethodPut:
			var body struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateRoadmap(r.Context(), roadmapID, session.UserID, body.Title, body.Description)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 2 && rest[1] == "export" && r.Method == http.MethodPost {
		result, err := s.service.ExportRoadmapPDF(r.Context(), roadmapID, session.UserID, session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.Write(result.Data)
		return
	}

	if len(rest) == 2 && rest[1] == "history" && r.Method == http.MethodGet {
		limit, ok := queryInt(w, r, "limit", 50)
		if !ok {
			return
		}
		payload, err := s.service.RoadmapHistory(r.Context(), roadmapID, session.UserID, limit)
		s.respond(w, payload, err)
		return
	}

	if len(rest) == 3 && rest[1] == "history" && r.Method == http.MethodGet {
		payload, err := s.service.RoadmapSnapshot(r.Context(), roadmapID, rest[2], session.UserID)
		s.respond(w, payload, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			status := strings.TrimSpace(r.URL.Query().Get("status"))
			payload, err := s.service.ListTasks(r.Context(), session.UserID, status)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Title    string     `json:"title"`
				Notes    string     `json:"notes"`
				Status   string     `json:"status"`
				Priority int        `json:"priority"`
				DueAt    *time.Time `json:"dueAt"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateTask(r.Context(), session.UserID, body.Title, body.Notes, body.Status, body.Priority, body.DueAt)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 {
		taskID := rest[0]
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Title    string     `json:"title"`
				Notes    string     `json:"notes"`
				Status   string     `json:"status"`
				Priority int        `json:"priority"`
				DueAt    *time.Time `json:"dueAt"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateTask(r.Context(), taskID, session.UserID, body.Title, body.Notes, body.Status, body.Priority, body.DueAt)
			s.respond(w, payload, err)
		case http.MethodDelete:
			if err := s.service.DeleteTask(r.Context(), taskID, session.UserID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleHabits(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListHabits(r.Context(), session.UserID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
				Days int    `json:"days"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateHabit(r.Context(), session.UserID, body.Name, body.Days)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 2 && rest[1] == "toggle" && r.Method == http.MethodPost {
		var body struct {
			Day string `json:"day"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.ToggleHabit(r.Context(), rest[0], session.UserID, body.Day)
		s.respond(w, payload, err)
		return
	}

	if len(rest) == 2 && rest[1] == "entries" && r.Method == http.MethodGet {
		fromDay := strings.TrimSpace(r.URL.Query().Get("from"))
		toDay := strings.TrimSpace(r.URL.Query().Get("to"))
		payload, err := s.service.ListHabitEntries(r.Context(), rest[0], session.UserID, fromDay, toDay)
		s.respond(w, payload, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleGoals(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListGoals(r.Context(), session.UserID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Title       string     `json:"title"`
				Description string     `json:"description"`
				TargetDate  *time.Time `json:"targetDate"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateGoal(r.Context(), session.UserID, body.Title, body.Description, body.TargetDate)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 2 && rest[1] == "progress" && r.Method == http.MethodPost {
		var body struct {
			Progress int `json:"progress"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateGoalProgress(r.Context(), rest[0], session.UserID, body.Progress)
		s.respond(w, payload, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleNotes(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListNotes(r.Context(), session.UserID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Title string `json:"title"`
				Body  string `json:"body"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateNote(r.Context(), session.UserID, body.Title, body.Body)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 {
		noteID := rest[0]
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Title string `json:"title"`
				Body  string `json:"body"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateNote(r.Context(), noteID, session.UserID, body.Title, body.Body)
			s.respond(w, payload, err)
		case http.MethodDelete:
			if err := s.service.DeleteNote(r.Context(), noteID, session.UserID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleResources(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListResources(r.Context(), session.UserID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Title string `json:"title"`
				URL   string `json:"url"`
				Kind  string `json:"kind"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateResource(r.Context(), session.UserID, body.Title, body.URL, body.Kind)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 2 && rest[1] == "attachment" && r.Method == http.MethodPost {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
			return
		}
		defer file.Close()
		payload, err := s.service.AttachResourceFile(
			r.Context(), rest[0], session.UserID,
			header.Filename, header.Header.Get("Content-Type"), file, header.Size,
		)
		s.respond(w, payload, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTransactions(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 1 && rest[0] == "summary" && r.Method == http.MethodGet {
		payload, err := s.service.TransactionSummary(r.Context(), session.UserID)
		s.respond(w, payload, err)
		return
	}

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			limit, ok := queryInt(w, r, "limit", 100)
			if !ok {
				return
			}
			payload, err := s.service.ListTransactions(r.Context(), session.UserID, limit)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				AmountCents int64     `json:"amountCents"`
				Currency    string    `json:"currency"`
				Direction   string    `json:"direction"`
				Category    string    `json:"category"`
				Description string    `json:"description"`
				OccurredAt  time.Time `json:"occurredAt"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateTransaction(
				r.Context(), session.UserID,
				body.AmountCents, body.Currency, body.Direction, body.Category, body.Description, body.OccurredAt,
			)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePaths(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListLearningPaths(r.Context(), session.UserID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateLearningPath(r.Context(), session.UserID, body.Title, body.Description)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// respond writes either the payload or the mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Auth handlers for email/password authentication

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := authSvc.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	response := map[string]any{
		"userId":  resp.UserID,
		"message": "Please check your email to verify your account",
	}
	if s.service.SMTPConfigured() {
		s.service.SendVerificationEmail(body.Email, body.DisplayName, resp.VerificationToken)
	} else {
		// Dev bypass: surface the token when no mail transport exists.
		response["devVerificationToken"] = resp.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}

	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := authSvc.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}

	if resp.RequiresVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
		return
	}

	session, err := s.service.CreateSession(r.Context(), resp.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := authSvc.VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully",
	})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, _ := authSvc.RequestPasswordReset(r.Context(), body.Email)

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	if token != "" {
		if s.service.SMTPConfigured() {
			s.service.SendPasswordResetEmail(r.Context(), body.Email, token)
		} else {
			response["devResetToken"] = token
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := authSvc.ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}
