// Package api defines the signaling wire schema shared by the gateway and
// the client. All identifiers are opaque strings; timestamps are ISO-8601.
package api

import "github.com/goccy/go-json"

// Client → gateway events.
const (
	JoinRoom               = "join-room"
	LeaveRoom              = "leave-room"
	ChatMessage            = "chat-message"
	GetSessionParticipants = "get-session-participants"
	GetMessageHistory      = "get-message-history"
	StartScreenShare       = "start-screen-share"
	StopScreenShare        = "stop-screen-share"
	ToggleMedia            = "toggle-media"
	CanvasDraw             = "canvas-draw"
	CanvasClear            = "canvas-clear"
)

// Gateway → client events.
const (
	Error               = "error"
	JoinRoomSuccess     = "join-room-success"
	JoinRoomError       = "join-room-error"
	UserJoined          = "user-joined"
	UserLeft            = "user-left"
	SessionParticipants = "session-participants"
	MessageHistory      = "message-history"
	ScreenShareStarted  = "screen-share-started"
	ScreenShareStopped  = "screen-share-stopped"
	MediaToggled        = "media-toggled"
)

// Unwrap decodes a raw payload into T, returning nil on malformed input.
func Unwrap[T any](data json.RawMessage) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}

type (
	JoinRoomRequest struct {
		SessionID string `json:"sessionId"`
		Token     string `json:"token"`
	}
	LiveKitInfo struct {
		URL         string `json:"url"`
		RoomName    string `json:"roomName"`
		AccessToken string `json:"accessToken"`
	}
	JoinRoomSuccessReply struct {
		SessionID string      `json:"sessionId"`
		UserID    string      `json:"userId"`
		LiveKit   LiveKitInfo `json:"livekit"`
	}
	ErrorReply struct {
		Message string `json:"message"`
	}

	LeaveRoomRequest struct {
		SessionID string `json:"sessionId"`
	}

	ChatSend struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	// ChatBroadcast is sent to every connection in the session, the sender
	// included, and mirrored into the media room's data channel.
	ChatBroadcast struct {
		ID           string `json:"id,omitempty"`
		SessionID    string `json:"sessionId"`
		Message      string `json:"message"`
		UserID       string `json:"userId"`
		UserFullName string `json:"userFullName"`
		UserAvatar   string `json:"userAvatar,omitempty"`
		Timestamp    string `json:"timestamp"`
	}

	Participant struct {
		UserID        string `json:"userId"`
		FullName      string `json:"fullName"`
		Avatar        string `json:"avatar,omitempty"`
		Role          string `json:"role"`
		AudioEnabled  bool   `json:"audioEnabled"`
		VideoEnabled  bool   `json:"videoEnabled"`
		ScreenSharing bool   `json:"screenSharing"`
		Online        bool   `json:"online"`
	}
	ParticipantsRequest struct {
		SessionID string `json:"sessionId"`
	}
	ParticipantsReply struct {
		SessionID    string        `json:"sessionId"`
		Participants []Participant `json:"participants"`
	}
	UserJoinedEvent struct {
		SessionID   string      `json:"sessionId"`
		Participant Participant `json:"participant"`
	}
	UserLeftEvent struct {
		SessionID string `json:"sessionId"`
		UserID    string `json:"userId"`
	}

	HistoryRequest struct {
		SessionID string `json:"sessionId"`
		Limit     int    `json:"limit,omitempty"`
		Before    string `json:"before,omitempty"`
	}
	HistoryReply struct {
		Messages []ChatBroadcast `json:"messages"`
		HasMore  bool            `json:"hasMore"`
		Total    int             `json:"total"`
	}

	ScreenShareRequest struct {
		SessionID string `json:"sessionId"`
	}
	ScreenShareEvent struct {
		SessionID string `json:"sessionId"`
		UserID    string `json:"userId"`
		IsSharing bool   `json:"isSharing"`
	}

	ToggleMediaRequest struct {
		SessionID string `json:"sessionId"`
		Type      string `json:"type"` // audio|video
		IsEnabled bool   `json:"isEnabled"`
	}
	MediaToggledEvent struct {
		SessionID string `json:"sessionId"`
		UserID    string `json:"userId"`
		Type      string `json:"type"`
		IsEnabled bool   `json:"isEnabled"`
	}

	// CanvasEvent carries one whiteboard operation; Data is opaque to the
	// gateway and interpreted by the canvas engine.
	CanvasEvent struct {
		SessionID string          `json:"sessionId"`
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data,omitempty"`
		Timestamp string          `json:"timestamp"`
	}
	CanvasClearEvent struct {
		SessionID  string `json:"sessionId"`
		Background string `json:"background,omitempty"`
		Timestamp  string `json:"timestamp"`
	}

	// TokenReply is the REST response of GET /meet/{sessionId}/livekit-token.
	TokenReply struct {
		SessionID string      `json:"sessionId"`
		LiveKit   LiveKitInfo `json:"livekit"`
	}
)

// Data-channel relay topics; payloads match the signaling events above.
const (
	TopicChat        = ChatMessage
	TopicScreenShare = "screen-share"
	TopicCanvas      = CanvasDraw
	TopicCanvasClear = CanvasClear
)
