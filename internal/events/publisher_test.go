package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/store"
)

func newTestPublisher(t *testing.T) (*Publisher, *store.Store, *eventbus.Bus) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	return NewPublisher(st, bus), st, bus
}

func TestPublish_StoresRecord(t *testing.T) {
	pub, st, _ := newTestPublisher(t)

	if err := pub.Publish(eventbus.PairingCode, map[string]string{"code": "482913"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var rec Record
	ok, err := st.GetJSON(KeyPrefix+eventbus.PairingCode, &rec)
	if err != nil {
		t.Fatalf("read slot: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored event record")
	}
	if rec.Timestamp == 0 {
		t.Error("expected a unix timestamp")
	}
	var data map[string]string
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data["code"] != "482913" {
		t.Errorf("wrong code: %s", data["code"])
	}
}

func TestPublish_MirrorsToBus(t *testing.T) {
	pub, _, bus := newTestPublisher(t)

	ch := bus.Subscribe(eventbus.HubConnected)
	if err := pub.Publish(eventbus.HubConnected, map[string]string{"name": "Living Room Hub"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case e := <-ch:
		if e.Type != eventbus.HubConnected {
			t.Errorf("wrong event type: %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus event")
	}
}

func TestPublish_OverwritesUndrained(t *testing.T) {
	pub, _, _ := newTestPublisher(t)

	if err := pub.Publish(eventbus.PairingCode, map[string]string{"code": "111111"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.Publish(eventbus.PairingCode, map[string]string{"code": "222222"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	rec, err := pub.Get(eventbus.PairingCode)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a pending record")
	}
	var data map[string]string
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data["code"] != "222222" {
		t.Errorf("expected latest event to win, got code %s", data["code"])
	}
}

func TestGet_DrainsSlot(t *testing.T) {
	pub, _, _ := newTestPublisher(t)

	if err := pub.Publish(eventbus.OperationEvent, map[string]string{"status": "start"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	first, err := pub.Get(eventbus.OperationEvent)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first == nil {
		t.Fatal("expected a pending record on first get")
	}

	second, err := pub.Get(eventbus.OperationEvent)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second != nil {
		t.Error("expected drained slot on second get")
	}
}

func TestGet_EmptySlot(t *testing.T) {
	pub, _, _ := newTestPublisher(t)

	rec, err := pub.Get(eventbus.UploadProgress)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for never-published event, got %+v", rec)
	}
}
