package observability

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordingExporter struct {
	mu      sync.Mutex
	records []string
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, record := range records {
		e.records = append(e.records, record.Body().AsString())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) exported() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.records...)
}

func TestSetupWithoutTracesKeepsTracerProvider(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}

	if otel.GetTracerProvider() != before {
		t.Fatalf("expected tracer provider to stay untouched")
	}
}

func TestSetupInstallsStdoutTracerProvider(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "test", Traces: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected sdk tracer provider, got %T", otel.GetTracerProvider())
	}
}

func TestLogLevelFiltersRecords(t *testing.T) {
	testCases := []struct {
		level    string
		expected []string
	}{
		{level: "debug", expected: []string{"job submitted", "session created", "job attempt failed"}},
		{level: "", expected: []string{"session created", "job attempt failed"}},
		{level: "warn", expected: []string{"job attempt failed"}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.level, func(t *testing.T) {
			exporter := &recordingExporter{}
			processor, err := withMinSeverity(sdklog.NewSimpleProcessor(exporter), testCase.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
			defer provider.Shutdown(context.Background())

			logger := otelslog.NewLogger("test", otelslog.WithLoggerProvider(provider))
			logger.Debug("job submitted")
			logger.Info("session created")
			logger.Warn("job attempt failed")

			got := exporter.exported()
			if len(got) != len(testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
			for i := range got {
				if got[i] != testCase.expected[i] {
					t.Fatalf("expected %v, got %v", testCase.expected, got)
				}
			}
		})
	}
}

func TestUnknownLogLevelIsRejected(t *testing.T) {
	if _, err := Setup(context.Background(), Config{ServiceName: "test", LogLevel: "loud"}); err == nil {
		t.Fatalf("expected unknown log level to be rejected")
	}
}
