package usbsas

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.FilesCopied != 0 {
		t.Errorf("expected 0 initial files copied, got %d", snap.FilesCopied)
	}

	m.FilesCopied.Add(1)
	m.BytesWritten.Add(1024)
	m.FilesFiltered.Add(1)
	m.FilesRejected.Add(1)
	m.FilesErrored.Add(1)

	snap = m.Snapshot()
	if snap.FilesCopied != 1 || snap.BytesWritten != 1024 {
		t.Errorf("unexpected copy/bytes snapshot: %+v", snap)
	}
	if snap.FilesFiltered != 1 || snap.FilesRejected != 1 || snap.FilesErrored != 1 {
		t.Errorf("unexpected filtered/rejected/errored snapshot: %+v", snap)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1_000_000 {
		t.Errorf("expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1_000_000 {
		t.Errorf("uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestNoOpObserver(t *testing.T) {
	var o NoOpObserver
	o.ObserveFileCopied(1024, 1_000_000)
	o.ObserveFileFiltered()
	o.ObserveFileRejected()
	o.ObserveFileErrored()
	o.ObserveBytesWritten(512)
	o.ObserveStatus("ReadSrc", 1, 2)
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()
	o := NewMetricsObserver(m)

	o.ObserveFileCopied(1024, 1_000_000)
	o.ObserveFileFiltered()
	o.ObserveFileRejected()
	o.ObserveFileErrored()

	snap := m.Snapshot()
	if snap.FilesCopied != 1 {
		t.Errorf("expected 1 file copied, got %d", snap.FilesCopied)
	}
	if snap.BytesWritten != 1024 {
		t.Errorf("expected 1024 bytes written, got %d", snap.BytesWritten)
	}
	if snap.FilesFiltered != 1 || snap.FilesRejected != 1 || snap.FilesErrored != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if snap.AvgLatencyNs != 1_000_000 {
		t.Errorf("expected avg latency 1ms, got %d ns", snap.AvgLatencyNs)
	}
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver(reg)

	o.ObserveFileCopied(2048, 1_000_000)
	o.ObserveFileFiltered()
	o.ObserveFileRejected()
	o.ObserveFileErrored()
	o.ObserveStatus("WriteDst", 5, 10)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatal("expected registered collectors to produce metric families")
	}
}
