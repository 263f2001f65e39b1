package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// bcrypt ignores input beyond 72 bytes.
const maxPasswordBytes = 72

type signinRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountHandler handles account registration and login.
type AccountHandler struct {
	accounts store.AccountRepository
	cost     int
	logger   *slog.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accounts store.AccountRepository, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{accounts: accounts, cost: bcrypt.DefaultCost, logger: logger}
}

// RegisterRoutes registers account routes.
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Post("/signin", h.Signin)
	r.Post("/login", h.Login)
}

// Signin registers a new account.
func (h *AccountHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	email := domain.NormalizeEmail(req.Email)
	switch {
	case name == "":
		Error(w, http.StatusBadRequest, "name is required")
		return
	case !domain.ValidEmail(email):
		Error(w, http.StatusBadRequest, "a valid email is required")
		return
	case len(req.Password) < minPasswordLength || len(req.Password) > maxPasswordBytes:
		Error(w, http.StatusBadRequest, "password must be between 8 and 72 bytes")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cost)
	if err != nil {
		h.logger.Error("Failed to hash password", "error", err)
		Error(w, http.StatusInternalServerError, "failed to register account")
		return
	}

	account := &domain.Account{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := h.accounts.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			Error(w, http.StatusConflict, "user already exists, please log in")
			return
		}
		h.logger.Error("Failed to create account", "error", err)
		Error(w, http.StatusInternalServerError, "failed to register account")
		return
	}

	h.logger.Info("Account registered", "account_id", account.ID)
	JSON(w, http.StatusCreated, map[string]interface{}{
		"status": "user registered successfully.",
		"name":   account.Name,
	})
}

// Login verifies an email and password pair.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.GetAccountByEmail(r.Context(), domain.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			Error(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Error("Failed to load account", "error", err)
		Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"status": true,
		"email":  account.Email,
	})
}
