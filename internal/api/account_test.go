package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestSigninAndLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/signin", `{"name":"Ada","email":"Ada@Example.com","password":"correct horse"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signin status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"name":"Ada"`) {
		t.Errorf("signin body = %s, want name Ada", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/signin", `{"name":"Ada","email":"ada@example.com","password":"correct horse"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate signin status = %d, want 409", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/login", `{"email":"ada@example.com","password":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Status bool   `json:"status"`
		Email  string `json:"email"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode login response: %v", err)
	}
	if !got.Status || got.Email != "ada@example.com" {
		t.Errorf("login response = %+v", got)
	}

	rec = s.do(t, http.MethodPost, "/login", `{"email":"ada@example.com","password":"wrong password"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/login", `{"email":"nobody@example.com","password":"whatever1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown account status = %d, want 401", rec.Code)
	}
}

func TestSigninValidation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"email":"a@example.com","password":"longenough"}`},
		{"bad email", `{"name":"A","email":"not-an-email","password":"longenough"}`},
		{"short password", `{"name":"A","email":"a@example.com","password":"short"}`},
		{"malformed", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/signin", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}
