package sse

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/farmguard-backend/internal/logger"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return NewHub(log)
}

func TestBroadcastReachesSubscribedChannelOnly(t *testing.T) {
	hub := testHub(t)
	farmA := FarmChannel(uuid.New())
	farmB := FarmChannel(uuid.New())

	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, farmA)

	hub.Broadcast(Message{Channel: farmA, Event: EventAlertCreated})
	hub.Broadcast(Message{Channel: farmB, Event: EventAlertCreated})

	select {
	case msg := <-client.Outbound:
		if msg.Channel != farmA {
			t.Fatalf("channel: want=%s got=%s", farmA, msg.Channel)
		}
	default:
		t.Fatalf("subscribed client missed its message")
	}
	select {
	case msg := <-client.Outbound:
		t.Fatalf("client received message for foreign channel: %+v", msg)
	default:
	}
}

func TestDangerChannelFansOutAcrossFarms(t *testing.T) {
	hub := testHub(t)
	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, DangerChannel)

	hub.Broadcast(Message{Channel: DangerChannel, Event: EventAlertEscalated})

	select {
	case msg := <-client.Outbound:
		if msg.Event != EventAlertEscalated {
			t.Fatalf("event: want=%s got=%s", EventAlertEscalated, msg.Event)
		}
	default:
		t.Fatalf("danger subscriber missed broadcast")
	}
}

func TestRemoveChannelStopsDelivery(t *testing.T) {
	hub := testHub(t)
	channel := FarmChannel(uuid.New())
	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, channel)
	hub.RemoveChannel(client, channel)

	hub.Broadcast(Message{Channel: channel, Event: EventAlertCreated})
	select {
	case msg := <-client.Outbound:
		t.Fatalf("unsubscribed client received message: %+v", msg)
	default:
	}
}

func TestSlowClientDropsInsteadOfBlocking(t *testing.T) {
	hub := testHub(t)
	channel := FarmChannel(uuid.New())
	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, channel)

	// fill the outbound buffer and then some; Broadcast must never block
	for i := 0; i < cap(client.Outbound)+10; i++ {
		hub.Broadcast(Message{Channel: channel, Event: EventAlertCreated})
	}
	if got := len(client.Outbound); got != cap(client.Outbound) {
		t.Fatalf("buffered messages: want=%d got=%d", cap(client.Outbound), got)
	}
}

func TestRemoveClientClearsAllSubscriptions(t *testing.T) {
	hub := testHub(t)
	chanA := FarmChannel(uuid.New())
	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, chanA)
	hub.AddChannel(client, DangerChannel)

	hub.RemoveClient(client)

	hub.Broadcast(Message{Channel: chanA, Event: EventAlertCreated})
	hub.Broadcast(Message{Channel: DangerChannel, Event: EventAlertCreated})
	select {
	case msg := <-client.Outbound:
		t.Fatalf("removed client received message: %+v", msg)
	default:
	}
}
