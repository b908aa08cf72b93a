package example

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sand8080/gantry/graph"
	"github.com/sand8080/gantry/task"
)

func Test_CollectReport(t *testing.T) {
	// auth -> (token) -> fetch -> (payload) -> archive
	token := "token-123-321"
	authServer := AuthServer("l", "p", token)
	defer authServer.Close()
	report := map[string]int{"requests": 42}
	reportServer := ReportServer(token, report)
	defer reportServer.Close()

	s := &Session{
		AuthURL:   authServer.URL,
		ReportURL: reportServer.URL,
		Login:     "l",
		Password:  "p",
	}
	archive := NewArchive()

	g := graph.New("collect-report", "usage report collection")
	require.NoError(t, g.Add(AuthTask(s)))
	require.NoError(t, g.Add(FetchTask(s)))
	require.NoError(t, g.Add(ArchiveTask(s, archive, "usage")))
	require.NoError(t, g.Validate())

	res := (&graph.Executor{}).Run(context.Background(), g)
	require.True(t, res.Success())
	assert.Equal(t, 3, res.TasksCompleted)
	assert.Equal(t, token, s.Token())

	stored, ok := archive.Get("usage")
	require.True(t, ok)
	var got map[string]int
	require.NoError(t, json.Unmarshal(stored, &got))
	assert.Equal(t, report, got)
}

func Test_CollectReport_BadCredentials(t *testing.T) {
	token := "token-123-321"
	authServer := AuthServer("l", "p", token)
	defer authServer.Close()
	reportServer := ReportServer(token, map[string]int{"requests": 42})
	defer reportServer.Close()

	s := &Session{
		AuthURL:   authServer.URL,
		ReportURL: reportServer.URL,
		Login:     "l",
		Password:  "wrong",
	}
	archive := NewArchive()

	g := graph.New("collect-report", "usage report collection")
	require.NoError(t, g.Add(AuthTask(s)))
	require.NoError(t, g.Add(FetchTask(s)))
	require.NoError(t, g.Add(ArchiveTask(s, archive, "usage")))

	res := (&graph.Executor{}).Run(context.Background(), g)
	assert.False(t, res.Success())
	assert.Equal(t, task.StatusFailed, res.Tasks["auth"].Status)
	assert.Equal(t, task.StatusUpstreamFailed, res.Tasks["fetch"].Status)
	assert.Equal(t, task.StatusUpstreamFailed, res.Tasks["archive"].Status)

	_, ok := archive.Get("usage")
	assert.False(t, ok)
}
