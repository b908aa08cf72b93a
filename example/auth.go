// Package example demonstrates the engine on a small report collection
// pipeline: authenticate, fetch a report with the issued token, archive
// the payload.
package example

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/sand8080/gantry/task"
)

// Session carries the endpoints and credentials of the pipeline and the
// state its tasks hand over to each other.
type Session struct {
	AuthURL   string
	ReportURL string
	Login     string
	Password  string

	mu     sync.Mutex
	token  string
	report json.RawMessage
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Token returns the token issued by the auth task.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) setReport(data json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = data
}

// Report returns the payload fetched by the report task.
func (s *Session) Report() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

type authReq struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResp struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

// AuthTask logs the session in and stores the issued token.
func AuthTask(s *Session) *task.Task {
	handler := task.HandlerFunc(func(ctx context.Context) (int, error) {
		body, err := json.Marshal(authReq{Login: s.Login, Password: s.Password})
		if err != nil {
			return -1, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.AuthURL, bytes.NewReader(body))
		if err != nil {
			return -1, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return -1, err
		}
		defer resp.Body.Close()

		var ar authResp
		if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
			return -1, err
		}
		if ar.Status != "ok" {
			return 1, errors.New("auth failed")
		}
		s.setToken(ar.Token)
		return 0, nil
	})
	return task.New(task.Spec{ID: "auth"}, handler)
}

// AuthServer implements a test auth endpoint issuing token for the given
// credentials.
func AuthServer(login, password, token string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req authReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, err)
			return
		}
		resp := authResp{Status: "failed"}
		if req.Login == login && req.Password == password {
			resp = authResp{Status: "ok", Token: token}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeError(w, err)
		}
	}))
}

func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(err.Error()))
}
