package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stremio-sos-go/pkg/config"
	"stremio-sos-go/pkg/logging"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func TestServe_DrainsBeforeHooks(t *testing.T) {
	srv := New(&config.Config{ShutdownTimeout: 2 * time.Second}, logging.Discard())

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	started := make(chan struct{})
	release := make(chan struct{})
	srv.Router().HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		record("handled")
		w.Write([]byte("done"))
	})
	srv.OnShutdown(func() { record("flush") })
	srv.OnShutdown(func() { record("close") })

	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	body := make(chan string, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
		if err != nil {
			body <- err.Error()
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body <- string(b)
	}()

	<-started
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	assert.Equal(t, "done", <-body, "in-flight request completes during drain")
	require.NoError(t, <-served)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"handled", "flush", "close"}, order)
}

func TestServe_AppliesMiddleware(t *testing.T) {
	srv := New(&config.Config{}, logging.Discard())
	srv.Router().HandleFunc("GET /stream/{type}/{id}", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	resp, err := http.Get("http://" + ln.Addr().String() + "/stream/movie/tt0133093.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"streams":[]}`, string(b))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServe_HooksRunWhenListenerFails(t *testing.T) {
	srv := New(&config.Config{}, logging.Discard())
	ran := false
	srv.OnShutdown(func() { ran = true })

	ln := listen(t)
	require.NoError(t, ln.Close())

	err := srv.Serve(context.Background(), ln)
	assert.Error(t, err)
	assert.True(t, ran)
}
