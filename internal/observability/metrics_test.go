package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/quillirc/quill/internal/testutil/testlog"
)

func TestSendCounters(t *testing.T) {
	testlog.Start(t)
	sendsBefore := testutil.ToFloat64(sends.WithLabelValues("libera"))
	errorsBefore := testutil.ToFloat64(sendErrors.WithLabelValues("libera"))

	RecordSend("libera")
	RecordSend("libera")
	RecordSendError("libera")

	if got := testutil.ToFloat64(sends.WithLabelValues("libera")); got != sendsBefore+2 {
		t.Fatalf("sends = %v, want %v", got, sendsBefore+2)
	}
	if got := testutil.ToFloat64(sendErrors.WithLabelValues("libera")); got != errorsBefore+1 {
		t.Fatalf("send errors = %v, want %v", got, errorsBefore+1)
	}
}

func TestInboundBatchCounters(t *testing.T) {
	testlog.Start(t)
	messagesBefore := testutil.ToFloat64(messagesReceived.WithLabelValues("libera"))
	batchesBefore := testutil.ToFloat64(batchesFlushed.WithLabelValues("libera"))

	RecordInboundBatch("libera", 3)

	if got := testutil.ToFloat64(messagesReceived.WithLabelValues("libera")); got != messagesBefore+3 {
		t.Fatalf("messages = %v, want %v", got, messagesBefore+3)
	}
	if got := testutil.ToFloat64(batchesFlushed.WithLabelValues("libera")); got != batchesBefore+1 {
		t.Fatalf("batches = %v, want %v", got, batchesBefore+1)
	}
}
