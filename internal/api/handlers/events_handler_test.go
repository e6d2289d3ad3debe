package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func TestEventStream(t *testing.T) {
	bus := events.NewBus(nil)
	srv := httptest.NewServer(http.HandlerFunc(NewEventsHandler(bus).Stream))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	require.Equal(t, "event: hello", lines.Text())

	require.Eventually(t, func() bool { return bus.Len() == 1 }, time.Second, 10*time.Millisecond)
	bus.Publish(context.Background(), events.KindRegionDeleted, map[string]int{"regionId": 4})

	var got []string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "event: regionDeleted") {
			require.True(t, lines.Scan())
			got = append(got, lines.Text())
			break
		}
	}
	require.Len(t, got, 1)
	require.Contains(t, got[0], `"regionId":4`)

	cancel()
	require.Eventually(t, func() bool { return bus.Len() == 0 }, time.Second, 10*time.Millisecond)
}
