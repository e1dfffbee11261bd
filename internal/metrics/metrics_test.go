package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCapture_incrementsCounterByOutcome(t *testing.T) {
	before := testutil.ToFloat64(CapturesTotal.WithLabelValues("driveway", "success"))
	ObserveCapture("driveway", true, 50*time.Millisecond)
	after := testutil.ToFloat64(CapturesTotal.WithLabelValues("driveway", "success"))
	if after != before+1 {
		t.Errorf("CapturesTotal success = %v, want %v", after, before+1)
	}
}

func TestObserveTick_recordsDuration(t *testing.T) {
	before := testutil.CollectAndCount(TickDuration)
	ObserveTick(10 * time.Millisecond)
	after := testutil.CollectAndCount(TickDuration)
	if after <= before {
		t.Errorf("expected TickDuration sample count to increase, before=%d after=%d", before, after)
	}
}
