package services

import (
	"strings"
	"testing"
	"time"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

func TestSSEHubBroadcastsToTenantAndEntity(t *testing.T) {
	hub := NewSSEHub()
	tenantCh := hub.RegisterClient("tenant", testTenant)
	entityCh := hub.RegisterClient(models.EntityEnrollment, "enr-1")
	otherCh := hub.RegisterClient("tenant", otherTenant)

	hub.BroadcastLog(&models.ProcessLog{
		TenantID:   testTenant,
		EntityType: models.EntityEnrollment,
		EntityID:   "enr-1",
		Stage:      "step_sent",
		Status:     models.LogStatusSuccess,
		Message:    "Step 1 sent",
	})

	for name, ch := range map[string]chan []byte{"tenant": tenantCh, "entity": entityCh} {
		select {
		case msg := <-ch:
			if !strings.HasPrefix(string(msg), "event: activity\ndata: ") || !strings.Contains(string(msg), `"stage":"step_sent"`) {
				t.Errorf("%s got %q", name, msg)
			}
		default:
			t.Errorf("%s subscriber received nothing", name)
		}
	}
	select {
	case msg := <-otherCh:
		t.Errorf("other tenant received %q", msg)
	default:
	}
}

func TestSSEHubUnregister(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.RegisterClient("tenant", testTenant)
	if hub.ClientCount("tenant", testTenant) != 1 {
		t.Fatalf("ClientCount = %d", hub.ClientCount("tenant", testTenant))
	}
	hub.UnregisterClient("tenant", testTenant, ch)
	hub.UnregisterClient("tenant", testTenant, ch)
	if _, open := <-ch; open {
		t.Error("channel should be closed after unregister")
	}
	if hub.ClientCount("tenant", testTenant) != 0 {
		t.Error("client still counted after unregister")
	}
}

func TestSSEHubDropsWhenFull(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.RegisterClient("tenant", testTenant)
	for i := 0; i < 15; i++ {
		hub.BroadcastLog(&models.ProcessLog{TenantID: testTenant, EntityType: models.EntityCredit, EntityID: "x"})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered = %d, want %d", len(ch), cap(ch))
	}
}

func TestHeartbeat(t *testing.T) {
	got := string(Heartbeat(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)))
	if got != ": heartbeat 2025-03-01T09:00:00Z\n\n" {
		t.Errorf("Heartbeat = %q", got)
	}
}
