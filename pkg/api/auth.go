package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"vortexl2/pkg/auth"
	"vortexl2/pkg/model"
)

// AuthHandler serves operator login when a MySQL account store is configured.
type AuthHandler struct {
	DB *gorm.DB
}

func (a *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/auth/register", a.handleRegister)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
}

// handleRegister only allows the first operator to be created (admin).
func (a *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Password == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	var count int64
	a.DB.Model(&model.Operator{}).Count(&count)
	if count > 0 {
		http.Error(w, "registration closed", http.StatusForbidden)
		return
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	op := model.Operator{Name: req.Name, PasswordHash: string(hash), IsAdmin: true}
	if err := a.DB.Create(&op).Error; err != nil {
		http.Error(w, "failed to create operator", http.StatusInternalServerError)
		return
	}
	token, _ := auth.Generate(op.ID, op.Name)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Password == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	var op model.Operator
	if err := a.DB.Where("name = ?", req.Name).First(&op).Error; err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token, _ := auth.Generate(op.ID, op.Name)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// authFunc builds the per-request check used by every protected handler. An
// empty static token leaves the API open (local management socket); otherwise
// the bearer value must match the static token exactly. Operator JWTs are an
// additional credential only when the operator account store is enabled, and
// only with an explicit JWT_SECRET: tokens signed with the built-in
// development secret would let anyone mint their own.
func authFunc(token string, allowJWT bool) func(r *http.Request) bool {
	if token == "" {
		return func(_ *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		h := r.Header.Get("X-Auth-Token")
		if h == "" {
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				h = strings.TrimPrefix(authz, "Bearer ")
			}
		}
		if h == token {
			return true
		}
		if allowJWT && auth.SecretConfigured() {
			if _, err := auth.Parse(h); err == nil {
				return true
			}
		}
		return false
	}
}
