package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/proto"
)

const (
	maxReconnectAttempts = 5
	reconnectBaseDelay   = time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli_user", "handle to authenticate with")
	token := flag.String("token", "", "JWT from /api/login (overrides -user)")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One reconnect loop: each session runs until the connection drops,
	// then we retry with an increasing delay.
	for attempt := 0; ; attempt++ {
		err := session(ctx, *addr, *user, *token, *room)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if attempt+1 >= maxReconnectAttempts {
			return fmt.Errorf("reconnect failed after %d attempts: %w", maxReconnectAttempts, err)
		}

		delay := reconnectBaseDelay * time.Duration(attempt+1)
		log.Printf("connection lost (%v), reconnecting in %s", err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func session(baseCtx context.Context, addr, user, token, room string) error {
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(msgType string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", msgType, err)
		}
		return wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload})
	}

	authData := proto.AuthenticateData{Protocol: proto.ProtocolVersion}
	if token != "" {
		authData.Token = token
	} else {
		authData.Handle = user
	}
	if err := send(proto.InboundTypeAuthenticate, authData); err != nil {
		return err
	}
	if err := send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: room}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s in room %s\n", addr, room)
	fmt.Println("Type messages and press Enter to send. Commands: /leave, /join <room>, /history <page>. Ctrl+C to exit.")

	readErr := make(chan error, 1)
	go func() {
		readErr <- readLoop(ctx, conn)
	}()

	go writeLoop(ctx, send)

	select {
	case err := <-readErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return err
		}
		printOutbound(&outbound)
	}
}

func printOutbound(outbound *proto.Outbound) {
	if outbound.Error != nil {
		fmt.Printf("! %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
		return
	}

	raw, err := json.Marshal(outbound.Data)
	if err != nil {
		log.Printf("marshal outbound data: %v", err)
		return
	}

	switch outbound.Event {
	case proto.EventAuthenticated:
		var evt proto.AuthenticatedData
		if json.Unmarshal(raw, &evt) == nil {
			fmt.Printf("* authenticated as %s\n", evt.User)
		}
	case proto.EventRoomJoined:
		var evt proto.RoomJoinedData
		if json.Unmarshal(raw, &evt) == nil {
			fmt.Printf("* joined %s (%d online, %d messages)\n", evt.Room, len(evt.Members), evt.Total)
			for i := len(evt.Messages) - 1; i >= 0; i-- {
				m := evt.Messages[i]
				fmt.Printf("  %s: %s\n", m.User, m.Text)
			}
		}
	case proto.EventRoomLeft:
		var evt proto.RoomLeftData
		if json.Unmarshal(raw, &evt) == nil {
			fmt.Printf("* left %s\n", evt.Room)
		}
	case proto.EventRoomDeleted:
		var evt proto.RoomDeletedData
		if json.Unmarshal(raw, &evt) == nil {
			fmt.Printf("* room %s was deleted\n", evt.Room)
		}
	case proto.EventUserJoined:
		var evt proto.PresenceData
		if json.Unmarshal(raw, &evt) == nil {
			fmt.Printf("* %s joined %s\n", evt.User, evt.Room)
		}
	case proto.EventUserLeft:
		var evt proto.PresenceData
		if json.Unmarshal(raw, &evt) == nil {
			fmt.Printf("* %s left %s\n", evt.User, evt.Room)
		}
	case proto.EventNewMessage:
		var evt proto.MessageData
		if json.Unmarshal(raw, &evt) == nil {
			fmt.Printf("%s: %s\n", evt.User, evt.Text)
		}
	case proto.EventMessageSent:
		var evt proto.MessageData
		if json.Unmarshal(raw, &evt) == nil {
			fmt.Printf("> delivered (%s)\n", evt.Status)
		}
	case proto.EventMessagesLoaded:
		var evt proto.MessagesLoadedData
		if json.Unmarshal(raw, &evt) == nil {
			fmt.Printf("* page %d of history (%d total)\n", evt.Page, evt.Total)
			for i := len(evt.Messages) - 1; i >= 0; i-- {
				m := evt.Messages[i]
				fmt.Printf("  %s: %s\n", m.User, m.Text)
			}
		}
	default:
		fmt.Printf("event=%s data=%s\n", outbound.Event, string(raw))
	}
}

func writeLoop(ctx context.Context, send func(string, any) error) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			switch {
			case text == "/leave":
				err = send(proto.InboundTypeLeaveRoom, struct{}{})
			case strings.HasPrefix(text, "/join "):
				err = send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: strings.TrimSpace(strings.TrimPrefix(text, "/join "))})
			case strings.HasPrefix(text, "/history"):
				page := 1
				if arg := strings.TrimSpace(strings.TrimPrefix(text, "/history")); arg != "" {
					if n, convErr := strconv.Atoi(arg); convErr == nil {
						page = n
					}
				}
				err = send(proto.InboundTypeLoadMessages, proto.LoadMessagesData{Page: page, PageSize: 50})
			default:
				err = send(proto.InboundTypeSendMessage, proto.SendMessageData{Text: text, TS: time.Now().UnixMilli()})
			}
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
