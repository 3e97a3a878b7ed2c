package observability

import (
	"testing"
	"time"

	"github.com/danmuck/callassist/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(channelFrames.WithLabelValues(FrameDuplicate))
	RecordFrame(FrameDuplicate)
	RecordFrame(FrameDuplicate)
	if got := testutil.ToFloat64(channelFrames.WithLabelValues(FrameDuplicate)); got != before+2 {
		t.Fatalf("duplicate frames=%v want %v", got, before+2)
	}

	unknown := testutil.ToFloat64(channelFrames.WithLabelValues(FrameUnknownType))
	RecordFrame(FrameUnknownType)
	if got := testutil.ToFloat64(channelFrames.WithLabelValues(FrameUnknownType)); got != unknown+1 {
		t.Fatalf("unknown-type frames=%v want %v", got, unknown+1)
	}

	RecordConnect(true)
	RecordConnect(false)
	RecordReconnectScheduled()
	RecordNotification("closed")
	RecordSessionEnd("auto", true)
	RecordHTTPRequest("GET", "/session", 200, 12*time.Millisecond)
}
