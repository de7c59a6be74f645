package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/seqtrigger/internal/notify"
	"github.com/livinlefevreloca/seqtrigger/internal/testutil"
)

func failureNotification() notify.Notification {
	return notify.Notification{
		Pipeline:      "Mapping",
		Success:       false,
		CorrelationID: "0190a6e8-0000-7000-8000-000000000001",
		ContextPath:   "/seq/HS001/bcl2fastq_out",
		RunID:         "HS001_0001",
		Reason:        "samplesheet missing",
	}
}

func TestNotification_Rendering(t *testing.T) {
	n := failureNotification()

	assert.Equal(t, "[RPD] Mapping: FAILED for run HS001_0001", n.Subject("[RPD] "))
	body := n.Body()
	assert.Contains(t, body, "Run: HS001_0001\n")
	assert.Contains(t, body, "Status: FAILED\n")
	assert.Contains(t, body, "Reason: samplesheet missing\n")
	assert.Contains(t, body, "Path: /seq/HS001/bcl2fastq_out\n")
	assert.Contains(t, body, "Correlation ID: 0190a6e8-0000-7000-8000-000000000001\n")

	n.Success = true
	n.Reason = ""
	assert.Equal(t, "SUCCESS", n.Status())
	assert.NotContains(t, n.Body(), "Reason:")
}

func TestMailNotifier(t *testing.T) {
	runner := testutil.NewFakeRunner()
	m := notify.NewMailNotifier(notify.MailConfig{
		Command:       "/usr/bin/mail",
		Recipients:    []string{"ops@example.org", "seq@example.org"},
		SubjectPrefix: "[RPD] ",
	}, runner, testutil.NewTestLogger().Logger())

	m.Notify(context.Background(), failureNotification())

	calls := runner.CallsTo("/usr/bin/mail")
	require.Len(t, calls, 1)
	assert.Equal(t,
		[]string{"-s", "[RPD] Mapping: FAILED for run HS001_0001", "ops@example.org", "seq@example.org"},
		calls[0].Command.Args)
	assert.Equal(t, failureNotification().Body(), calls[0].Stdin)
}

func TestMailNotifier_FailureIsLogged(t *testing.T) {
	runner := testutil.NewFakeRunner()
	runner.Fail("/usr/bin/mail", 1, "mail: cannot send")
	logger := testutil.NewTestLogger()

	m := notify.NewMailNotifier(notify.MailConfig{Command: "/usr/bin/mail", Recipients: []string{"ops@example.org"}}, runner, logger.Logger())
	m.Notify(context.Background(), failureNotification())

	entry, ok := logger.Find("failed to send notification mail")
	require.True(t, ok)
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "HS001_0001", entry.Fields["run_id"])
}

func webhookConfig(url string) notify.WebhookConfig {
	return notify.WebhookConfig{
		URL:          url,
		RetryMax:     3,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
	}
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	logger := testutil.NewTestLogger()
	w := notify.NewWebhookNotifier(webhookConfig(server.URL), logger.Logger())
	w.Notify(context.Background(), failureNotification())

	require.NotNil(t, got)
	assert.Equal(t, "HS001_0001", got["run_id"])
	assert.Equal(t, "FAILED", got["status"])
	assert.Equal(t, false, got["success"])
	assert.Equal(t, "samplesheet missing", got["reason"])
	assert.False(t, logger.HasError())
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := testutil.NewTestLogger()
	w := notify.NewWebhookNotifier(webhookConfig(server.URL), logger.Logger())
	w.Notify(context.Background(), failureNotification())

	assert.Equal(t, int32(3), attempts.Load())
	_, failed := logger.Find("failed to deliver webhook notification")
	assert.False(t, failed)
}

func TestWebhookNotifier_ClientErrorIsLogged(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	logger := testutil.NewTestLogger()
	w := notify.NewWebhookNotifier(webhookConfig(server.URL), logger.Logger())
	w.Notify(context.Background(), failureNotification())

	assert.Equal(t, int32(1), attempts.Load(), "4xx responses are not retried")
	entry, ok := logger.Find("failed to deliver webhook notification")
	require.True(t, ok)
	assert.Equal(t, "HS001_0001", entry.Fields["run_id"])
}

func TestMulti_FansOut(t *testing.T) {
	a := testutil.NewRecordingNotifier()
	b := testutil.NewRecordingNotifier()

	notify.Multi{a, b}.Notify(context.Background(), failureNotification())

	assert.Equal(t, []notify.Notification{failureNotification()}, a.Notifications())
	assert.Equal(t, []notify.Notification{failureNotification()}, b.Notifications())
}

func TestLogNotifier(t *testing.T) {
	logger := testutil.NewTestLogger()
	notify.NewLogNotifier(logger.Logger()).Notify(context.Background(), failureNotification())

	entry, ok := logger.Find("notification")
	require.True(t, ok)
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "FAILED", entry.Fields["status"])
	assert.Equal(t, "0190a6e8-0000-7000-8000-000000000001", entry.Fields["correlation_id"])
}
