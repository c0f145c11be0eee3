package sse_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/battlesim/api/sse"
	"github.com/kasuganosora/battlesim/sim"
	"github.com/kasuganosora/battlesim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readEvent returns the next "event:" name and its data line.
func readEvent(t *testing.T, r *bufio.Reader) (name, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestServeSSE_StreamsEvaluations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, ps := testutil.SetupTestCache(t)
	h := sse.NewHandler(ps, time.Minute, testutil.Logger(t))

	r := gin.New()
	r.GET("/api/events", h.ServeSSE)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?scenario=duel", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	name, _ := readEvent(t, body)
	require.Equal(t, "connected", name)

	require.NoError(t, ps.Publish(ctx, sim.EventsChannel, `{"id":"1","scenario":"raid"}`))
	require.NoError(t, ps.Publish(ctx, sim.EventsChannel, `{"id":"2","scenario":"duel"}`))

	name, data := readEvent(t, body)
	assert.Equal(t, "evaluation", name)
	assert.JSONEq(t, `{"id":"2","scenario":"duel"}`, data)
}
