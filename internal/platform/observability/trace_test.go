package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/requestctx"
)

func TestParseCloudTrace(t *testing.T) {
	sc, ok := parseCloudTrace("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" || !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("unexpected span context %+v", sc)
	}
	if got := formatCloudTrace(sc); got != "105445aa7843bc8bf206b12000100000/1;o=1" {
		t.Fatalf("expected round trip, got %q", got)
	}

	for _, header := range []string{"", "nope", "xyz/1;o=1", "105445aa7843bc8bf206b12000100000/abc", "105445aa7843bc8bf206b12000100000/0"} {
		if _, ok := parseCloudTrace(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var info requestctx.TraceInfo
	handler := TraceMiddleware("gift-shop")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set(CloudTraceHeader, "105445aa7843bc8bf206b12000100000/42;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if info.ProjectID != "gift-shop" {
		t.Fatalf("expected project id, got %+v", info)
	}
	// The global no-op tracer propagates the remote span context unchanged.
	if info.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected remote trace id, got %q", info.TraceID)
	}
	if _, err := trace.TraceIDFromHex(info.TraceID); err != nil {
		t.Fatalf("invalid trace id: %v", err)
	}
}
