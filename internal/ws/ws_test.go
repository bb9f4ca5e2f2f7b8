package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu        sync.Mutex
	writes    []any
	pings     int
	closed    int
	writing   bool
	overlap   bool
	pingErr   error
	writeErr  error
	deadlines int
}

func (f *fakeSocket) WriteJSON(v interface{}) error {
	f.mu.Lock()
	if f.writing {
		f.overlap = true
	}
	f.writing = true
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writing = false
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, v)
	return nil
}

func (f *fakeSocket) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakeSocket) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines++
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func TestConn_SendJSON(t *testing.T) {
	t.Run("writes with a deadline", func(t *testing.T) {
		sock := &fakeSocket{}
		conn := NewConn("s1", "", sock)

		require.NoError(t, conn.SendJSON(map[string]string{"status": "jwt_saved"}))
		assert.Len(t, sock.writes, 1)
		assert.Equal(t, 1, sock.deadlines)
	})

	t.Run("serializes concurrent writers", func(t *testing.T) {
		sock := &fakeSocket{}
		conn := NewConn("s1", "", sock)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = conn.SendJSON(map[string]int{"n": i})
			}(i)
		}
		wg.Wait()

		assert.Len(t, sock.writes, 20)
		assert.False(t, sock.overlap)
	})

	t.Run("fails after close", func(t *testing.T) {
		sock := &fakeSocket{}
		conn := NewConn("s1", "", sock)
		require.NoError(t, conn.Close())

		assert.ErrorIs(t, conn.SendJSON("x"), ErrConnClosed)
		assert.ErrorIs(t, conn.Ping(), ErrConnClosed)
		assert.Empty(t, sock.writes)
	})

	t.Run("propagates write errors", func(t *testing.T) {
		sock := &fakeSocket{writeErr: errors.New("broken pipe")}
		conn := NewConn("s1", "", sock)
		assert.Error(t, conn.SendJSON("x"))
	})
}

func TestConn_Close(t *testing.T) {
	sock := &fakeSocket{}
	conn := NewConn("s1", "ref", sock)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.Equal(t, 1, sock.closed)
	assert.True(t, conn.IsClosed())
	select {
	case <-conn.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestConn_Claims(t *testing.T) {
	conn := NewConn("s1", "", &fakeSocket{})

	assert.True(t, conn.Reserve())
	assert.False(t, conn.Reserve())
	conn.Release()
	assert.True(t, conn.Reserve())

	assert.Equal(t, int64(0), conn.Claims())
	assert.Equal(t, int64(1), conn.RecordClaim())
	assert.Equal(t, int64(2), conn.RecordClaim())
	assert.Equal(t, int64(2), conn.Claims())
}

func TestRegistry(t *testing.T) {
	t.Run("register lookup unregister", func(t *testing.T) {
		r := NewRegistry()
		conn := NewConn("s1", "", &fakeSocket{})

		require.NoError(t, r.Register("s1", conn))
		assert.Equal(t, 1, r.Count())

		got, ok := r.Lookup("s1")
		require.True(t, ok)
		assert.Same(t, conn, got)

		assert.Same(t, conn, r.Unregister("s1"))
		assert.Nil(t, r.Unregister("s1"))
		_, ok = r.Lookup("s1")
		assert.False(t, ok)
		assert.Equal(t, 0, r.Count())
		assert.False(t, conn.IsClosed())
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register("s1", NewConn("s1", "", &fakeSocket{})))
		err := r.Register("s1", NewConn("s1", "", &fakeSocket{}))
		assert.ErrorIs(t, err, ErrDuplicateSession)
	})

	t.Run("unknown lookup", func(t *testing.T) {
		_, ok := NewRegistry().Lookup("missing")
		assert.False(t, ok)
	})

	t.Run("each may unregister", func(t *testing.T) {
		r := NewRegistry()
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("s%d", i)
			require.NoError(t, r.Register(id, NewConn(id, "", &fakeSocket{})))
		}

		seen := 0
		r.Each(func(c *Conn) {
			seen++
			r.Unregister(c.SessionID)
		})
		assert.Equal(t, 5, seen)
		assert.Equal(t, 0, r.Count())
	})

	t.Run("close closes every connection", func(t *testing.T) {
		r := NewRegistry()
		socks := []*fakeSocket{{}, {}}
		require.NoError(t, r.Register("a", NewConn("a", "", socks[0])))
		require.NoError(t, r.Register("b", NewConn("b", "", socks[1])))

		r.Close()

		assert.Equal(t, 0, r.Count())
		assert.Equal(t, 1, socks[0].closed)
		assert.Equal(t, 1, socks[1].closed)
		assert.ErrorIs(t, r.Register("c", NewConn("c", "", &fakeSocket{})), ErrRegistryClosed)
	})

	t.Run("concurrent use", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("s%d", i)
				_ = r.Register(id, NewConn(id, "", &fakeSocket{}))
				r.Lookup(id)
				r.Count()
				r.Unregister(id)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 0, r.Count())
	})
}

func TestConn_OverRealSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- NewConn("s1", "", c)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	conn := <-serverConns
	defer conn.Close()

	require.NoError(t, conn.SendJSON(map[string]string{"uuid": "s1"}))

	_, raw, err := client.ReadMessage()
	require.NoError(t, err)
	var msg map[string]string
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "s1", msg["uuid"])

	assert.NoError(t, conn.Ping())
}
