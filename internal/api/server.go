package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/smmtools/vk-insight-bot/internal/aggregation"
	"github.com/smmtools/vk-insight-bot/internal/auth"
	"github.com/smmtools/vk-insight-bot/internal/models"
	"github.com/smmtools/vk-insight-bot/internal/store"
	"github.com/smmtools/vk-insight-bot/internal/vk"
)

// Aggregator runs one metrics aggregation per call.
type Aggregator interface {
	Aggregate(ctx context.Context, req models.MetricsRequest) (*models.Metrics, error)
}

// GroupResolver resolves a community identifier against VK.
type GroupResolver interface {
	GroupByName(ctx context.Context, name string) (models.GroupInfo, error)
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	store      *store.Store
	auth       *auth.Manager
	aggregator Aggregator
	resolver   GroupResolver
}

// NewServer creates the API server.
func NewServer(st *store.Store, am *auth.Manager, agg Aggregator, resolver GroupResolver) *Server {
	return &Server{store: st, auth: am, aggregator: agg, resolver: resolver}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	r.HandleFunc("/auth/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/auth/me", s.requireAuth(s.handleMe)).Methods("GET")

	r.HandleFunc("/groups", s.requireAuth(s.handleCreateGroup)).Methods("POST")
	r.HandleFunc("/groups", s.requireAuth(s.handleListGroups)).Methods("GET")
	r.HandleFunc("/groups/unlink/{id:[0-9]+}", s.requireAuth(s.handleUnlinkGroup)).Methods("DELETE")
	r.HandleFunc("/groups/{id:[0-9]+}", s.requireAuth(s.handleDeleteGroup)).Methods("DELETE")

	r.HandleFunc("/vk/metrics", s.requireAuth(s.handleMetrics)).Methods("GET")

	return r
}

type contextKey string

const claimsKey contextKey = "claims"

// requireAuth validates the bearer token and stores its claims in the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

type registerRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
	Name            string `json:"name"`
	Telegram        string `json:"telegram"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" || req.ConfirmPassword == "" {
		writeError(w, http.StatusBadRequest, "username, password and confirm_password are required")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	user, err := s.store.CreateUser(r.Context(), store.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		Name:         req.Name,
		Telegram:     req.Telegram,
		UniqueCode:   auth.GenerateUniqueCode(),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		writeError(w, http.StatusBadRequest, "username already taken")
		return
	}
	if err != nil {
		logrus.Errorf("Failed to create user: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":            user.ID,
		"username":      user.Username,
		"role":          user.Role,
		"name":          user.Name,
		"telegram":      user.Telegram,
		"registered_at": user.RegisteredAt.Format(time.RFC3339),
		"unique_code":   user.UniqueCode,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := s.store.UserByUsername(r.Context(), req.Username)
	if err != nil || !s.auth.VerifyPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.auth.IssueToken(user.Username, user.Role)
	if err != nil {
		logrus.Errorf("Failed to issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	user, err := s.store.UserByUsername(r.Context(), claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            user.ID,
		"username":      user.Username,
		"role":          user.Role,
		"name":          user.Name,
		"telegram":      user.Telegram,
		"registered_at": user.RegisteredAt.Format(time.RFC3339),
		"unique_code":   user.UniqueCode,
	})
}

type createGroupRequest struct {
	ScreenName string `json:"screen_name"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScreenName == "" {
		writeError(w, http.StatusBadRequest, "screen_name is required")
		return
	}

	user, err := s.currentUser(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	info, err := s.resolver.GroupByName(r.Context(), req.ScreenName)
	if err != nil {
		if errors.Is(err, vk.ErrGroupNotFound) {
			writeError(w, http.StatusBadRequest, "group not found on VK")
			return
		}
		logrus.Errorf("Failed to resolve group %q: %v", req.ScreenName, err)
		writeError(w, http.StatusBadGateway, "VK API unavailable")
		return
	}

	group, err := s.store.UpsertGroup(r.Context(), store.Group{
		VKGroupID:  info.ID,
		Name:       info.Name,
		ScreenName: info.ScreenName,
	})
	if err != nil {
		logrus.Errorf("Failed to store group: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to store group")
		return
	}

	if err := s.store.LinkGroup(r.Context(), user.ID, group.ID); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, http.StatusBadRequest, "group already in your list")
			return
		}
		logrus.Errorf("Failed to link group: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to link group")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"db_data": group,
		"vk_data": info,
	})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	groups, err := s.store.GroupsForUser(r.Context(), user.ID)
	if err != nil {
		logrus.Errorf("Failed to list groups: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}

	result := make([]map[string]interface{}, 0, len(groups))
	for _, grp := range groups {
		entry := map[string]interface{}{"db_data": grp}
		// Refresh from VK per request; a vanished group degrades to
		// stored data only.
		if info, err := s.resolver.GroupByName(r.Context(), grp.ScreenName); err == nil {
			entry["vk_data"] = info
		} else {
			logrus.Warnf("Failed to refresh group %q from VK: %v", grp.ScreenName, err)
		}
		result = append(result, entry)
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUnlinkGroup(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	groupID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err := s.store.UnlinkGroup(r.Context(), user.ID, groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group is not in your list")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to unlink group")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"detail": "group unlinked"})
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims.Role != "admin" {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	groupID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err := s.store.DeleteGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete group")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"detail": "group deleted"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupName := q.Get("group_name")
	if groupName == "" {
		writeError(w, http.StatusBadRequest, "group_name is required")
		return
	}

	req := models.MetricsRequest{
		GroupName:  groupName,
		DateFrom:   parseUnix(q.Get("date_from")),
		DateTo:     parseUnix(q.Get("date_to")),
		QuickRange: q.Get("quick_range"),
		SortBy:     q.Get("sort_by"),
		Filters:    aggregation.ParseFilters(q.Get("filters")),
	}
	if req.SortBy == "" {
		req.SortBy = aggregation.SortByDate
	}

	metrics, err := s.aggregator.Aggregate(r.Context(), req)
	if err != nil {
		if aggregation.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "aggregation cancelled")
			return
		}
		logrus.Errorf("Aggregation for %q failed: %v", groupName, err)
		writeError(w, http.StatusBadGateway, "aggregation failed")
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) currentUser(r *http.Request) (store.User, error) {
	return s.store.UserByUsername(r.Context(), claimsFrom(r).Subject)
}

func parseUnix(v string) int64 {
	ts, _ := strconv.ParseInt(v, 10, 64)
	return ts
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
