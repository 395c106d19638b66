package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wfunc/landfluss/protocol"
)

func TestMonitor_CountsRelayTraffic(t *testing.T) {
	m := NewMonitor("test")

	m.MessageRelayed(uint16(protocol.MsgTypeSolution))
	m.MessageRelayed(uint16(protocol.MsgTypeSolution))
	m.MessageRelayed(uint16(protocol.MsgTypeSkip))
	m.DeliveryCompleted(5 * time.Millisecond)
	m.DeliveryTimedOut()
	m.PlayerReconnected()
	m.IncOnlinePeers()
	m.IncOnlinePeers()
	m.DecOnlinePeers()
	m.SetActiveRooms(3)

	if got := testutil.ToFloat64(m.metrics.MessagesRelayed.WithLabelValues(protocol.MsgTypeSolution.String())); got != 2 {
		t.Errorf("Expected 2 solutions relayed, got %v", got)
	}
	if m.Relayed() != 3 {
		t.Errorf("Expected 3 relayed messages, got %d", m.Relayed())
	}
	if got := testutil.ToFloat64(m.metrics.OnlinePeers); got != 1 {
		t.Errorf("Expected 1 online peer, got %v", got)
	}
	if got := testutil.ToFloat64(m.metrics.ActiveRooms); got != 3 {
		t.Errorf("Expected 3 rooms, got %v", got)
	}
	if got := testutil.ToFloat64(m.metrics.DeliveryTimeouts); got != 1 {
		t.Errorf("Expected 1 timeout, got %v", got)
	}
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("test")
	m.PlayerReconnected()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"test_reconnects_total 1", "test_uptime_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected %q in metrics output", name)
		}
	}
}

func TestMonitor_SeparateRegistries(t *testing.T) {
	NewMonitor("test")
	NewMonitor("test")
}
