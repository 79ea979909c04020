package telemetry

import (
	"context"
	"encoding/json"
	"os"

	"github.com/faultline/faultline-go/pkg/clients"
	"github.com/faultline/faultline-go/pkg/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName  = "faultline.dev/faultline-go"
	TraceParent = "TRACE_PARENT"
)

// StartTracing opens a span and threads its context through the client set
func StartTracing(clientSets *clients.ClientSets, spanName string) trace.Span {
	if clientSets.Context == nil {
		clientSets.Context = context.Background()
	}
	ctx, span := otel.Tracer(TracerName).Start(clientSets.Context, spanName)
	clientSets.Context = ctx
	return span
}

// GetTraceParentContext rebuilds a context from the TRACE_PARENT carrier, used
// when the runner is launched by an automation layer that owns the trace
func GetTraceParentContext() context.Context {
	traceParent := os.Getenv(TraceParent)
	if traceParent == "" {
		return context.Background()
	}

	pro := otel.GetTextMapPropagator()
	carrier := make(map[string]string)
	if err := json.Unmarshal([]byte(traceParent), &carrier); err != nil {
		log.Errorf("unable to unmarshal trace parent carrier, err: %v", err)
		return context.Background()
	}

	return pro.Extract(context.Background(), propagation.MapCarrier(carrier))
}

// GetMarshalledSpanFromContext extracts the span context as a json encoded
// carrier suitable for TRACE_PARENT
func GetMarshalledSpanFromContext(ctx context.Context) string {
	carrier := make(map[string]string)
	pro := otel.GetTextMapPropagator()

	pro.Inject(ctx, propagation.MapCarrier(carrier))

	if len(carrier) == 0 {
		log.Error("spanContext not present in the context, unable to marshall")
		return ""
	}

	marshalled, err := json.Marshal(carrier)
	if err != nil {
		log.Error(err.Error())
		return ""
	}
	if len(marshalled) >= 1024 {
		log.Error("marshalled span context is too large, unable to marshall")
		return ""
	}
	return string(marshalled)
}
