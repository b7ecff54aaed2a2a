package domain

import "time"

// MediaKind is the attachment subtype reported by the network for an inbound event.
type MediaKind string

const (
	KindImage    MediaKind = "image"
	KindVideo    MediaKind = "video"
	KindSticker  MediaKind = "sticker"
	KindDocument MediaKind = "document"
	KindAudio    MediaKind = "audio"
	KindOther    MediaKind = "other"
)

// RawEvent is an inbound chat event as delivered by the Connection.
type RawEvent struct {
	ID        string
	From      string // canonical JID of the chat the event arrived in
	Body      string
	HasMedia  bool
	Kind      MediaKind
	FromMe    bool
	Timestamp time.Time
	Handle    any // adapter data needed by Connection.DownloadMedia
}

// NormalizedMessage is the record stored in the inbox and pushed to clients.
// JSON names match the browser client.
type NormalizedMessage struct {
	SenderDisplayName string    `json:"from"`
	Text              string    `json:"text"`
	Media             *MediaRef `json:"media"`
	TimestampMillis   int64     `json:"t"`
	SenderAddress     string    `json:"jid"`
	IsOutgoingEcho    bool      `json:"fromMe"`
}

// MediaRef is an accepted attachment; Payload is base64 text.
type MediaRef struct {
	MimeType string `json:"mimetype"`
	Payload  string `json:"data"`
}

// Contact is the profile returned by a contact lookup.
type Contact struct {
	PushName string
	FullName string
}

// Media is a downloaded attachment.
type Media struct {
	MimeType string
	Data     []byte
}
