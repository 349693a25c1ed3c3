package metrics

import (
	"testing"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector()
	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
}

func TestCollector_FrameMetrics(t *testing.T) {
	collector := NewCollector()

	collector.FrameSent(20)
	collector.FrameReceived(23)

	if got := collector.GetFramesSent(); got != 1 {
		t.Errorf("GetFramesSent() = %d, want 1", got)
	}
	if got := collector.GetBytesSent(); got != 20 {
		t.Errorf("GetBytesSent() = %d, want 20", got)
	}
	if got := collector.GetFramesReceived(); got != 1 {
		t.Errorf("GetFramesReceived() = %d, want 1", got)
	}
	if got := collector.GetBytesReceived(); got != 23 {
		t.Errorf("GetBytesReceived() = %d, want 23", got)
	}
}

func TestCollector_DedupeAndDecode(t *testing.T) {
	collector := NewCollector()

	collector.DedupeHit()
	collector.DedupeHit()
	collector.DecodeSucceeded("agarce - v1")
	collector.DecodeSucceeded("agarce - v1")
	collector.DecodeFailed()

	if got := collector.GetDedupeHits(); got != 2 {
		t.Errorf("GetDedupeHits() = %d, want 2", got)
	}
	if got := collector.GetDecodeSuccesses("agarce - v1"); got != 2 {
		t.Errorf("GetDecodeSuccesses() = %d, want 2", got)
	}
	if got := collector.GetDecodeFailures(); got != 1 {
		t.Errorf("GetDecodeFailures() = %d, want 1", got)
	}
}

func TestCollector_ControllerActivity(t *testing.T) {
	collector := NewCollector()

	collector.ControllerActive("ceiling1")
	if got := collector.GetActiveControllers(); got != 1 {
		t.Errorf("GetActiveControllers() = %d, want 1", got)
	}

	collector.ControllerIdle("ceiling1")
	if got := collector.GetActiveControllers(); got != 0 {
		t.Errorf("GetActiveControllers() = %d, want 0", got)
	}
}

func TestCollector_SchedulerAndRollover(t *testing.T) {
	collector := NewCollector()

	collector.SchedulerRotated()
	collector.TxCountRolledOver()

	if got := collector.GetSchedulerRotations(); got != 1 {
		t.Errorf("GetSchedulerRotations() = %d, want 1", got)
	}
	if got := collector.GetTxCountRollovers(); got != 1 {
		t.Errorf("GetTxCountRollovers() = %d, want 1", got)
	}
}

func TestCollector_Reset(t *testing.T) {
	collector := NewCollector()

	collector.ControllerActive("ceiling1")
	collector.FrameSent(10)

	collector.Reset()

	if collector.GetActiveControllers() != 0 {
		t.Error("Expected active controllers to be 0 after reset")
	}
	if collector.GetFramesSent() != 1 {
		t.Error("Expected cumulative frame counter to survive reset")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	collector := NewCollector()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			collector.FrameSent(20)
			collector.FrameReceived(20)
			collector.DedupeHit()
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if collector.GetFramesSent() < 10 {
		t.Error("Expected at least 10 frames sent")
	}
}
