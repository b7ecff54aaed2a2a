package whatsapp

import (
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"whatsbridge/internal/domain"
)

// toRawEvent maps a whatsmeow message onto the bridge's inbound event.
// from is the already-resolved chat address.
func toRawEvent(evt *events.Message, from string) domain.RawEvent {
	kind, hasMedia := mediaKind(evt.Message)
	return domain.RawEvent{
		ID:        string(evt.Info.ID),
		From:      from,
		Body:      messageBody(evt.Message),
		HasMedia:  hasMedia,
		Kind:      kind,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
		Handle:    evt.Message,
	}
}

// messageBody is the literal text of a message: the conversation text, the
// extended text or an attachment caption.
func messageBody(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	switch {
	case m.GetConversation() != "":
		return m.GetConversation()
	case m.GetExtendedTextMessage().GetText() != "":
		return m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage().GetCaption() != "":
		return m.GetImageMessage().GetCaption()
	case m.GetVideoMessage().GetCaption() != "":
		return m.GetVideoMessage().GetCaption()
	case m.GetDocumentMessage().GetCaption() != "":
		return m.GetDocumentMessage().GetCaption()
	}
	return ""
}

func mediaKind(m *waE2E.Message) (domain.MediaKind, bool) {
	if m == nil {
		return "", false
	}
	switch {
	case m.GetImageMessage() != nil:
		return domain.KindImage, true
	case m.GetVideoMessage() != nil:
		return domain.KindVideo, true
	case m.GetStickerMessage() != nil:
		return domain.KindSticker, true
	case m.GetDocumentMessage() != nil:
		return domain.KindDocument, true
	case m.GetAudioMessage() != nil:
		return domain.KindAudio, true
	}
	return "", false
}

// downloadable returns the attachment of m and its mime type.
func downloadable(m *waE2E.Message) (whatsmeow.DownloadableMessage, string) {
	switch {
	case m.GetImageMessage() != nil:
		return m.GetImageMessage(), m.GetImageMessage().GetMimetype()
	case m.GetVideoMessage() != nil:
		return m.GetVideoMessage(), m.GetVideoMessage().GetMimetype()
	case m.GetStickerMessage() != nil:
		return m.GetStickerMessage(), m.GetStickerMessage().GetMimetype()
	case m.GetDocumentMessage() != nil:
		return m.GetDocumentMessage(), m.GetDocumentMessage().GetMimetype()
	case m.GetAudioMessage() != nil:
		return m.GetAudioMessage(), m.GetAudioMessage().GetMimetype()
	}
	return nil, ""
}
