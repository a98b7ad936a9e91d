package http

import (
	"encoding/json"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/core"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/proto"
)

// inboundToCommand maps a decoded envelope to a core command. A non-nil
// proto.Error means the envelope was rejected before reaching the core;
// a non-nil error means the payload could not be decoded at all.
func (h *WSHandler) inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeAuthenticate:
		var data proto.AuthenticateData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Protocol != 0 && data.Protocol != proto.ProtocolVersion {
			return nil, &proto.Error{Code: "unsupported_protocol", Msg: "unsupported protocol version"}, nil
		}

		handle := data.Handle
		if data.Token != "" {
			claims, err := h.auth.ValidateToken(data.Token)
			if err != nil {
				return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}, nil
			}
			handle = claims.Handle
		}
		if handle == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "handle or token is required"}, nil
		}
		return &core.Command{Kind: core.CommandAuthenticate, Handle: handle}, nil, nil

	case proto.InboundTypeJoinRoom:
		var data proto.JoinRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}, nil
		}
		return &core.Command{Kind: core.CommandJoinRoom, RoomName: data.Room}, nil, nil

	case proto.InboundTypeLeaveRoom:
		return &core.Command{Kind: core.CommandLeaveRoom}, nil, nil

	case proto.InboundTypeCreateRoom:
		var data proto.CreateRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}, nil
		}
		return &core.Command{Kind: core.CommandCreateRoom, RoomName: data.Room}, nil, nil

	case proto.InboundTypeDeleteRoom:
		var data proto.DeleteRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.RoomID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandDeleteRoom, RoomID: data.RoomID}, nil, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		return &core.Command{
			Kind:      core.CommandSendMessage,
			Content:   data.Text,
			Timestamp: data.TS,
		}, nil, nil

	case proto.InboundTypeLoadMessages:
		var data proto.LoadMessagesData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		return &core.Command{
			Kind:     core.CommandLoadMessages,
			Page:     data.Page,
			PageSize: data.PageSize,
		}, nil, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func messageData(view *core.MessageView) proto.MessageData {
	return proto.MessageData{
		ID:     view.ID,
		User:   view.Handle,
		Text:   view.Content,
		TS:     view.Timestamp,
		Status: view.Status,
	}
}

func messagesData(views []core.MessageView) []proto.MessageData {
	out := make([]proto.MessageData, 0, len(views))
	for i := range views {
		out = append(out, messageData(&views[i]))
	}
	return out
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventAuthenticated:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventAuthenticated,
			Data: proto.AuthenticatedData{
				User:     event.Handle,
				UserID:   event.UserID,
				Protocol: proto.ProtocolVersion,
			},
		}
	case core.EventAuthError:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventAuthError,
			Error: protoError(event.Error),
		}
	case core.EventRoomJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomJoined,
			Data: proto.RoomJoinedData{
				RoomID:   event.RoomID,
				Room:     event.RoomName,
				Members:  event.Members,
				Messages: messagesData(event.Messages),
				Total:    event.Total,
				HasMore:  event.HasMore,
			},
		}
	case core.EventRoomLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomLeft,
			Data: proto.RoomLeftData{
				RoomID: event.RoomID,
				Room:   event.RoomName,
			},
		}
	case core.EventRoomCreated:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomCreated,
			Data: proto.RoomCreatedData{
				RoomID:  event.RoomID,
				Room:    event.RoomName,
				Creator: event.Handle,
			},
		}
	case core.EventRoomDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomDeleted,
			Data: proto.RoomDeletedData{
				RoomID: event.RoomID,
				Room:   event.RoomName,
			},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserJoined,
			Data: proto.PresenceData{
				RoomID: event.RoomID,
				Room:   event.RoomName,
				User:   event.Handle,
			},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserLeft,
			Data: proto.PresenceData{
				RoomID: event.RoomID,
				Room:   event.RoomName,
				User:   event.Handle,
			},
		}
	case core.EventMessageSent:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageSent,
			Data:  messageData(event.Message),
		}
	case core.EventNewMessage:
		msg := messageData(event.Message)
		msg.Status = "" // status only travels to the author
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data:  msg,
		}
	case core.EventMessagesLoaded:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessagesLoaded,
			Data: proto.MessagesLoadedData{
				RoomID:   event.RoomID,
				Page:     event.Page,
				Messages: messagesData(event.Messages),
				Total:    event.Total,
				HasMore:  event.HasMore,
			},
		}
	case core.EventError:
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: protoError(event.Error),
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func protoError(cerr *core.CoreError) *proto.Error {
	if cerr == nil {
		return &proto.Error{Code: "unknown", Msg: "unknown error"}
	}
	return &proto.Error{Code: cerr.Code, Msg: cerr.Message}
}
