package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cirrus-mro/cirrus-api/internal/audit"
)

// echoedContext is what the test handler reports back for each accessor
type echoedContext struct {
	RequestID string                `json:"request_id"`
	FromGin   audit.RequestContext  `json:"from_gin"`
	FromCtx   *audit.RequestContext `json:"from_ctx"`
}

func newRequestContextRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware(), RequestContextMiddleware())
	r.GET("/", func(c *gin.Context) {
		out := echoedContext{RequestID: c.GetString(RequestIDKey)}
		rc, err := audit.FromGin(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		out.FromGin = rc
		if ambient, ok := audit.FromContext(c.Request.Context()); ok {
			out.FromCtx = &ambient
		}
		c.JSON(http.StatusOK, out)
	})
	return r
}

func serveContext(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, echoedContext) {
	t.Helper()
	w := httptest.NewRecorder()
	newRequestContextRouter().ServeHTTP(w, req)
	var out echoedContext
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return w, out
}

// ---------------------------------------------------------------------------
// RequestIDMiddleware
// ---------------------------------------------------------------------------

func TestRequestIDMiddleware_GeneratesUUID(t *testing.T) {
	w, out := serveContext(t, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID", id)
	}
	if out.RequestID != id {
		t.Errorf("context request id = %q, header = %q", out.RequestID, id)
	}
}

func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "lb-req-001")
	w, _ := serveContext(t, req)

	if got := w.Header().Get(RequestIDHeader); got != "lb-req-001" {
		t.Errorf("X-Request-ID = %q, want lb-req-001", got)
	}
}

// ---------------------------------------------------------------------------
// RequestContextMiddleware
// ---------------------------------------------------------------------------

func TestRequestContextMiddleware_FromHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "planner@cirrus.aero")
	req.Header.Set(SessionIDHeader, "sess-77")
	req.RemoteAddr = "10.1.2.3:5555"

	w, out := serveContext(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	if out.FromGin.UserID == nil || *out.FromGin.UserID != "planner@cirrus.aero" {
		t.Errorf("user_id = %v", out.FromGin.UserID)
	}
	if out.FromGin.SessionID != "sess-77" {
		t.Errorf("session_id = %q", out.FromGin.SessionID)
	}
	if out.FromGin.IPAddress == nil || *out.FromGin.IPAddress != "10.1.2.3" {
		t.Errorf("ip_address = %v", out.FromGin.IPAddress)
	}
	if out.FromCtx == nil || out.FromCtx.SessionID != "sess-77" {
		t.Errorf("ambient context = %+v, want the same session", out.FromCtx)
	}
}

func TestRequestContextMiddleware_GeneratesSession(t *testing.T) {
	w, out := serveContext(t, httptest.NewRequest(http.MethodGet, "/", nil))

	if out.FromGin.UserID != nil {
		t.Errorf("user_id = %v, want nil", *out.FromGin.UserID)
	}
	if _, err := uuid.Parse(out.FromGin.SessionID); err != nil {
		t.Errorf("session_id = %q, want a UUID", out.FromGin.SessionID)
	}
	if w.Header().Get(SessionIDHeader) != out.FromGin.SessionID {
		t.Error("generated session id not echoed in response header")
	}
}

func TestRequestContextMiddleware_RequestsAreIsolated(t *testing.T) {
	_, first := serveContext(t, httptest.NewRequest(http.MethodGet, "/", nil))
	_, second := serveContext(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if first.FromGin.SessionID == second.FromGin.SessionID {
		t.Error("two requests without a session header shared a session id")
	}
}

func TestFromGin_WithoutMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		if _, err := audit.FromGin(c); err == nil {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusInternalServerError)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 when the request context is missing", w.Code)
	}
}
