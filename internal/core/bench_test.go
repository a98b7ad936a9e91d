package core

import (
	"fmt"
	"testing"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	hub, _ := newTestHub(b)

	sender := authClient(b, hub, "sender")
	sender.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "bench"}
	mustEvent(b, sender.Events, EventRoomJoined)

	clients := make([]*Client, 0, recipients)
	for i := 0; i < recipients; i++ {
		c := authClient(b, hub, fmt.Sprintf("client_%d", i))
		c.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "bench"}
		mustEvent(b, c.Events, EventRoomJoined)
		clients = append(clients, c)
	}

	// Drain events for the sender and all but the first recipient to
	// avoid channel backpressure.
	target := clients[0]
	go func() {
		for range sender.Events {
		}
	}()
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	// Flush the join notices buffered on the measured recipient.
	for {
		select {
		case <-target.Events:
			continue
		default:
		}
		break
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{
			Kind:      CommandSendMessage,
			Content:   "payload",
			Timestamp: int64(i + 1),
		}
		for {
			if ev := <-target.Events; ev.Kind == EventNewMessage {
				break
			}
		}
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
