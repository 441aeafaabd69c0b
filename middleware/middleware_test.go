package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"channels/message"
)

var echoHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"status":"ok"}`))
})

func slowHandler(d time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(d):
			w.Write([]byte(`{"status":"ok"}`))
		case <-r.Context().Done():
		}
	})
}

func serve(h http.Handler, method string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) message.Reply {
	t.Helper()
	var reply message.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	return reply
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := Logging(zap.New(core))(echoHandler)

	rec := serve(h, http.MethodGet)
	assert.Equal(t, http.StatusOK, rec.Code)

	entries := logs.FilterMessage("request served").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "GET", entries[0].ContextMap()["method"])
}

func TestLoggingWarnsOnFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	serve(h, http.MethodPost)
	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusBadRequest), entries[0].ContextMap()["status"])
}

func TestTimeoutPass(t *testing.T) {
	rec := serve(Timeout(500*time.Millisecond)(echoHandler), http.MethodGet)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimeoutExceeded(t *testing.T) {
	rec := serve(Timeout(50*time.Millisecond)(slowHandler(time.Second)), http.MethodGet)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "request timed out", decode(t, rec).Message)
}

func TestRateLimit(t *testing.T) {
	// rate=1/s, burst=2: the first two pass, the third is rejected.
	h := RateLimit(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(h, http.MethodPost).Code, "request %d", i)
	}

	rec := serve(h, http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	reply := decode(t, rec)
	assert.Equal(t, message.StatusRejected, reply.Status)
	assert.Equal(t, "rate limit exceeded", reply.Message)
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := Recover(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := serve(h, http.MethodPost)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, message.StatusError, decode(t, rec).Status)
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+".before")
				next.ServeHTTP(w, r)
				order = append(order, name+".after")
			})
		}
	}

	h := Chain(mark("A"), mark("B"))(echoHandler)
	serve(h, http.MethodGet)
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}

func TestChainComposes(t *testing.T) {
	h := Chain(Logging(zap.NewNop()), Recover(zap.NewNop()), Timeout(500*time.Millisecond))(echoHandler)
	rec := serve(h, http.MethodGet)
	assert.Equal(t, http.StatusOK, rec.Code)
}
