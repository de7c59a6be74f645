package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/livinlefevreloca/seqtrigger/internal/notify"
	"github.com/livinlefevreloca/seqtrigger/internal/proc"
)

// MockClock provides controllable time for testing
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
	}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// Call is one invocation observed by FakeRunner
type Call struct {
	Command proc.Command
	Stdin   string
}

// FakeRunner is a proc.Runner that never starts a process. Results are scripted
// per executable path; unscripted paths succeed with no output.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []Call
	results map[string]proc.Result
	hooks   map[string]func(proc.Command)
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		results: make(map[string]proc.Result),
		hooks:   make(map[string]func(proc.Command)),
	}
}

// SetResult scripts the result returned for every call to path
func (f *FakeRunner) SetResult(path string, result proc.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[path] = result
}

// Fail scripts path to exit with the given nonzero code and output
func (f *FakeRunner) Fail(path string, exitCode int, output string) {
	f.SetResult(path, proc.Result{
		ExitCode: exitCode,
		Output:   []byte(output),
		Kind:     proc.KindExit,
		Err:      fmt.Errorf("exit status %d", exitCode),
	})
}

// OnRun registers fn to be called with the command before path "runs"
func (f *FakeRunner) OnRun(path string, fn func(proc.Command)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[path] = fn
}

func (f *FakeRunner) Run(ctx context.Context, cmd proc.Command) proc.Result {
	var stdin string
	if cmd.Stdin != nil {
		data, _ := io.ReadAll(cmd.Stdin)
		stdin = string(data)
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Command: cmd, Stdin: stdin})
	result, ok := f.results[cmd.Path]
	hook := f.hooks[cmd.Path]
	f.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	// A canceled context kills a real child
	if err := ctx.Err(); err != nil {
		return proc.Result{ExitCode: -1, Kind: proc.KindCanceled, Err: err}
	}
	if !ok {
		result = proc.Result{Kind: proc.KindNone}
	}
	if cmd.Output != nil && len(result.Output) > 0 {
		cmd.Output.Write(result.Output)
	}
	return result
}

// Calls returns every observed call in order
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]Call, len(f.calls))
	copy(result, f.calls)
	return result
}

// CallsTo returns the observed calls to path
func (f *FakeRunner) CallsTo(path string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]Call, 0)
	for _, c := range f.calls {
		if c.Command.Path == path {
			result = append(result, c)
		}
	}
	return result
}

// RecordingNotifier captures notifications instead of delivering them
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{sent: make([]notify.Notification, 0)}
}

func (r *RecordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *RecordingNotifier) Notifications() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]notify.Notification, len(r.sent))
	copy(result, r.sent)
	return result
}

// TestLogger captures slog records for assertions
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

func NewTestLogger() *TestLogger {
	return &TestLogger{
		entries: make([]LogEntry, 0),
	}
}

func (l *TestLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Fields: fields})
}

func (l *TestLogger) GetEntries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]LogEntry, len(l.entries))
	copy(result, l.entries)
	return result
}

func (l *TestLogger) GetEntriesByLevel(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]LogEntry, 0)
	for _, entry := range l.entries {
		if entry.Level == level {
			result = append(result, entry)
		}
	}
	return result
}

// Find returns the first entry with the given message
func (l *TestLogger) Find(msg string) (LogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Message == msg {
			return entry, true
		}
	}
	return LogEntry{}, false
}

func (l *TestLogger) HasError() bool {
	return len(l.GetEntriesByLevel("ERROR")) > 0
}

func (l *TestLogger) HasWarning() bool {
	return len(l.GetEntriesByLevel("WARN")) > 0
}

// Logger returns a *slog.Logger that writes to this TestLogger
func (l *TestLogger) Logger() *slog.Logger {
	return slog.New(&testLogHandler{logger: l})
}

// testLogHandler implements slog.Handler for TestLogger. Groups are flattened.
type testLogHandler struct {
	logger *TestLogger
	attrs  []slog.Attr
}

func (h *testLogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		fields[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	h.logger.record(r.Level.String(), r.Message, fields)
	return nil
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &testLogHandler{logger: h.logger, attrs: newAttrs}
}

func (h *testLogHandler) WithGroup(_ string) slog.Handler {
	return h
}
