package example

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/sand8080/gantry/task"
)

// FetchTask downloads the usage report with the token issued by the
// auth task.
func FetchTask(s *Session) *task.Task {
	handler := task.HandlerFunc(func(ctx context.Context) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ReportURL, nil)
		if err != nil {
			return -1, err
		}
		req.Header.Set("Authorization", "Bearer "+s.Token())
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return -1, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return 1, errors.New("report fetch rejected: " + resp.Status)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return -1, err
		}
		if !json.Valid(data) {
			return 1, errors.New("report is not valid JSON")
		}
		s.setReport(data)
		return 0, nil
	})
	return task.New(task.Spec{ID: "fetch", DependsOn: []string{"auth"}}, handler)
}

// ReportServer implements a test report endpoint guarded by a bearer
// token.
func ReportServer(token string, report map[string]int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			writeError(w, err)
		}
	}))
}
