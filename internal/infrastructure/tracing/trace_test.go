package tracing

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptyst/adaptyst/internal/shared/id"
)

func TestSpanNesting(t *testing.T) {
	session := id.NewSessionID()
	tracer := New(session, nil)

	parent, ctx := tracer.StartSpan(context.Background(), "entity.run")
	child, _ := tracer.StartSpan(ctx, "module.process")

	assert.Equal(t, session, parent.TraceID)
	assert.Empty(t, parent.ParentID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, parent.SpanID, GetSpanID(ctx))

	child.SetTag("module", "regions")
	child.SetError(errors.New("failed"))
	tracer.Submit(child)
	tracer.Submit(parent)
	tracer.Close()

	recent := tracer.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "module.process", recent[0].Name)
	assert.Equal(t, "failed", recent[0].Error)
	assert.Equal(t, map[string]string{"module": "regions"}, recent[0].Tags)
	assert.Equal(t, string(parent.SpanID), recent[1].SpanID)
	assert.GreaterOrEqual(t, recent[1].Duration, 0.0)
}

func TestFinishIsIdempotent(t *testing.T) {
	tracer := New(id.NewSessionID(), nil)
	defer tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "x")
	span.Finish()
	end := span.EndTime
	span.Finish()
	assert.Equal(t, end, span.EndTime)
}

func TestRetention(t *testing.T) {
	tracer := New(id.NewSessionID(), nil)
	tracer.retained = 3

	for i := 0; i < 5; i++ {
		span, _ := tracer.StartSpan(context.Background(), "phase")
		span.SetTag("i", string(rune('0'+i)))
		tracer.Submit(span)
	}
	tracer.Close()

	recent := tracer.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "2", recent[0].Tags["i"])
	assert.Equal(t, "4", recent[2].Tags["i"])
}

func TestSubmitAfterClose(t *testing.T) {
	tracer := New(id.NewSessionID(), nil)
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	assert.NotPanics(t, func() { tracer.Submit(span) })
	assert.Empty(t, tracer.Recent())
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New(id.NewSessionID(), nil)

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/health", func(c *gin.Context) { c.Status(204) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, 204, rec.Code)
	assert.Equal(t, string(tracer.Session()), rec.Header().Get("X-Trace-ID"))
	assert.True(t, id.IsValid(rec.Header().Get("X-Span-ID")))

	tracer.Close()
	recent := tracer.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "http /health", recent[0].Name)
	assert.Equal(t, "204", recent[0].Tags["http.status"])
}
