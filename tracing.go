package retryio

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingOptions configure the tracing middleware for an HTTPOpener.
type TracingOptions struct {
	Tracer        trace.Tracer
	ComponentName string
}

// NewTracingMiddleware returns a Middleware that creates a client span for
// every open and resume request issued by an HTTPOpener. Requests pass
// through unchanged when no tracer is configured.
func NewTracingMiddleware(options *TracingOptions) Middleware {
	return func(transport *http.Transport) http.RoundTripper {
		return &tracingMiddleware{
			tr:            transport,
			tracer:        options.Tracer,
			componentName: options.ComponentName}
	}
}

type tracingMiddleware struct {
	tr            *http.Transport
	tracer        trace.Tracer
	componentName string
}

func (t *tracingMiddleware) CloseIdleConnections() {
	t.tr.CloseIdleConnections()
}

// RoundTrip performs the request within a client span. The requested range
// is recorded so resumed fetches can be told apart from initial opens.
func (t *tracingMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tracer == nil {
		return t.tr.RoundTrip(req)
	}

	ctx, span := t.tracer.Start(req.Context(), getOperationName(req),
		trace.WithAttributes(
			attribute.String("otel.component.name", t.componentName),
			attribute.String("url.full", req.URL.String()),
			attribute.String("http.request.method", req.Method),
			attribute.String("http.request.header.range", req.Header.Get("Range")),
		),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req = req.WithContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	rsp, err := t.tr.RoundTrip(req)
	if rsp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", rsp.StatusCode))
	}
	return rsp, err
}

func getOperationName(req *http.Request) string {
	if req.Header.Get("Range") != "" {
		return "resume_object"
	}
	return "open_object"
}
