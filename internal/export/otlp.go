package export

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/internal/safe"
	"github.com/coral-mesh/docteur/pkg/timing"
)

const (
	scopeName    = "github.com/coral-mesh/docteur"
	bootSpanName = "boot"
)

// Span attribute keys.
const (
	AttrModuleID        = "docteur.module.id"
	AttrModuleSpecifier = "docteur.module.specifier"
	AttrModuleOrigin    = "docteur.module.origin"
	AttrModuleResolveMs = "docteur.module.resolve_ms"
	AttrModuleLoadMs    = "docteur.module.load_ms"
	AttrModuleExecMs    = "docteur.module.exec_ms"
	AttrComponent       = "docteur.component"
	AttrPhase           = "docteur.phase"
	AttrPartial         = "docteur.partial"
	AttrProcessRSS      = "docteur.process.rss_bytes"
	AttrProcessThreads  = "docteur.process.threads"
	// AttrSyntheticTime marks spans whose start is not a measured timestamp.
	AttrSyntheticTime = "docteur.synthetic_time"
)

// BuildTraces converts a result into one trace: a root span covering the
// boot, a child span per module nested under its importer, and a child
// span per component phase. startedAt anchors the result's relative
// millisecond timestamps to wall-clock time.
func BuildTraces(result timing.ProfileResult, serviceName string, startedAt time.Time, conv collector.Conventions) ptrace.Traces {
	traces := ptrace.NewTraces()
	rs := traces.ResourceSpans().AppendEmpty()
	res := rs.Resource().Attributes()
	res.PutStr("service.name", serviceName)
	if p := result.Process; p != nil {
		res.PutInt("process.pid", int64(p.PID))
		rss, _ := safe.Uint64ToInt64(p.RSSBytes)
		res.PutInt(AttrProcessRSS, rss)
		res.PutInt(AttrProcessThreads, int64(p.NumThreads))
	}
	ss := rs.ScopeSpans().AppendEmpty()
	ss.Scope().SetName(scopeName)

	traceID := traceIDFor(result.SessionID)
	at := func(ms float64) pcommon.Timestamp {
		return pcommon.NewTimestampFromTime(startedAt.Add(time.Duration(ms * float64(time.Millisecond))))
	}

	rootID := spanIDFor(result.SessionID, bootSpanName)
	root := ss.Spans().AppendEmpty()
	root.SetTraceID(traceID)
	root.SetSpanID(rootID)
	root.SetName(bootSpanName)
	root.SetKind(ptrace.SpanKindInternal)
	root.SetStartTimestamp(at(result.StartTimestamp))
	root.SetEndTimestamp(at(result.StartTimestamp + result.TotalTime))
	root.Attributes().PutBool(AttrPartial, result.Partial)

	known := make(map[string]bool, len(result.Modules))
	for _, m := range result.Modules {
		known[m.ResolvedIdentifier] = true
	}

	for _, m := range result.Modules {
		if m.ResolvedIdentifier == "" {
			continue
		}
		span := ss.Spans().AppendEmpty()
		span.SetTraceID(traceID)
		span.SetSpanID(spanIDFor(result.SessionID, m.ResolvedIdentifier))
		if known[m.ParentIdentifier] {
			span.SetParentSpanID(spanIDFor(result.SessionID, m.ParentIdentifier))
		} else {
			span.SetParentSpanID(rootID)
		}
		span.SetName(m.DisplaySpecifier())
		span.SetKind(ptrace.SpanKindInternal)

		start, end := m.StartTimestamp, m.EndTimestamp
		if !m.Loaded || end < start {
			start, end = result.StartTimestamp, result.StartTimestamp+m.EffectiveTime()
			span.Attributes().PutBool(AttrSyntheticTime, true)
		}
		span.SetStartTimestamp(at(start))
		span.SetEndTimestamp(at(end))

		attrs := span.Attributes()
		attrs.PutStr(AttrModuleID, m.ResolvedIdentifier)
		attrs.PutStr(AttrModuleSpecifier, m.Specifier)
		attrs.PutStr(AttrModuleOrigin, string(conv.Categorize(m.ResolvedIdentifier)))
		attrs.PutDouble(AttrModuleResolveMs, m.ResolveDurationMs)
		attrs.PutDouble(AttrModuleLoadMs, m.LoadDurationMs)
		if m.ExecutionMs != nil {
			attrs.PutDouble(AttrModuleExecMs, *m.ExecutionMs)
		}
	}

	// Component phases carry durations only; they are laid out from the
	// start of the boot.
	for _, c := range result.Components {
		name := c.ComponentName + "." + c.Phase.String()
		span := ss.Spans().AppendEmpty()
		span.SetTraceID(traceID)
		span.SetSpanID(spanIDFor(result.SessionID, "component:"+name))
		span.SetParentSpanID(rootID)
		span.SetName(name)
		span.SetKind(ptrace.SpanKindInternal)
		span.SetStartTimestamp(at(result.StartTimestamp))
		span.SetEndTimestamp(at(result.StartTimestamp + c.DurationMs))
		span.Attributes().PutStr(AttrComponent, c.ComponentName)
		span.Attributes().PutStr(AttrPhase, c.Phase.String())
		span.Attributes().PutBool(AttrSyntheticTime, true)
	}

	return traces
}

// WriteOTLP writes result as OTLP/JSON traces.
func WriteOTLP(w io.Writer, result timing.ProfileResult, serviceName string, startedAt time.Time, conv collector.Conventions) error {
	var m ptrace.JSONMarshaler
	data, err := m.MarshalTraces(BuildTraces(result, serviceName, startedAt, conv))
	if err != nil {
		return fmt.Errorf("failed to marshal traces: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write traces: %w", err)
	}
	return nil
}

// traceIDFor reuses the session UUID as the trace id so a trace can be
// matched with the run that produced it.
func traceIDFor(sessionID string) pcommon.TraceID {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID))
	}
	return pcommon.TraceID(id)
}

// spanIDFor derives a stable span id from the session and a span key.
func spanIDFor(sessionID, key string) pcommon.SpanID {
	var id pcommon.SpanID
	binary.BigEndian.PutUint64(id[:], xxh3.HashString(sessionID+"\x00"+key))
	return id
}
