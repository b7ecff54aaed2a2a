package classify

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type downloaderFunc func(ctx context.Context, ev domain.RawEvent) (domain.Media, error)

func (f downloaderFunc) DownloadMedia(ctx context.Context, ev domain.RawEvent) (domain.Media, error) {
	return f(ctx, ev)
}

func staticMedia(mime string, data []byte, calls *int) downloaderFunc {
	return func(context.Context, domain.RawEvent) (domain.Media, error) {
		*calls++
		return domain.Media{MimeType: mime, Data: data}, nil
	}
}

func TestText_Rules(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		hasMedia bool
		kind     domain.MediaKind
		want     string
	}{
		{"literal text", "Szia", false, "", "Szia"},
		{"caption beats placeholder", "look", true, domain.KindImage, "look"},
		{"image", "", true, domain.KindImage, "[image]"},
		{"video", "", true, domain.KindVideo, "[video]"},
		{"sticker", "", true, domain.KindSticker, "[sticker]"},
		{"document", "", true, domain.KindDocument, "[document]"},
		{"audio is unknown", "", true, domain.KindAudio, "[unknown message]"},
		{"unset kind", "", true, "", "[unknown message]"},
		{"empty", "", false, "", "[empty message]"},
		{"whitespace is literal", " ", false, "", " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.body, tt.hasMedia, tt.kind))
		})
	}
}

func TestText_NeverEmpty(t *testing.T) {
	bodies := []string{"", " ", "a", "\u0301", "\x00", "A\u0301da\u0301m", "\u200b"}
	kinds := []domain.MediaKind{"", domain.KindImage, domain.KindVideo, domain.KindSticker,
		domain.KindDocument, domain.KindAudio, domain.KindOther, "weird"}
	for _, body := range bodies {
		for _, kind := range kinds {
			for _, hasMedia := range []bool{false, true} {
				assert.NotEmpty(t, Text(body, hasMedia, kind), "body=%q kind=%q media=%v", body, kind, hasMedia)
			}
		}
	}
}

func TestText_NormalizesToNFC(t *testing.T) {
	assert.Equal(t, "\u00e9", Text("e\u0301", false, ""))
}

func TestClassify_KeepsImageMedia(t *testing.T) {
	calls := 0
	c := New(Config{Logger: testLogger(), Downloader: staticMedia("image/gif", []byte("GIF89a"), &calls)})

	got := c.Classify(context.Background(), domain.RawEvent{From: "1@c.us", HasMedia: true, Kind: domain.KindImage})

	assert.Equal(t, 1, calls)
	assert.Equal(t, "[image]", got.Text)
	require.NotNil(t, got.Media)
	assert.Equal(t, "image/gif", got.Media.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("GIF89a")), got.Media.Payload)
}

func TestClassify_DiscardsNonImageMedia(t *testing.T) {
	calls := 0
	c := New(Config{Logger: testLogger(), Downloader: staticMedia("video/mp4", []byte("data"), &calls)})

	got := c.Classify(context.Background(), domain.RawEvent{HasMedia: true, Kind: domain.KindVideo})

	assert.Equal(t, 1, calls, "non-image media is still downloaded")
	assert.Equal(t, "[video]", got.Text)
	assert.Nil(t, got.Media)
}

func TestClassify_DiscardsOversizedImage(t *testing.T) {
	calls := 0
	c := New(Config{Logger: testLogger(), MaxBytes: 4, Downloader: staticMedia("image/png", []byte("12345"), &calls)})

	got := c.Classify(context.Background(), domain.RawEvent{HasMedia: true, Kind: domain.KindImage})
	assert.Nil(t, got.Media)
}

func TestClassify_DownloadFailureStillEmitsText(t *testing.T) {
	c := New(Config{Logger: testLogger(), Downloader: downloaderFunc(func(context.Context, domain.RawEvent) (domain.Media, error) {
		return domain.Media{}, errors.New("cdn unreachable")
	})})

	got := c.Classify(context.Background(), domain.RawEvent{From: "1@c.us", HasMedia: true, Kind: domain.KindSticker})

	assert.Equal(t, "[sticker]", got.Text)
	assert.Nil(t, got.Media)
}

func TestClassify_NoMediaSkipsDownload(t *testing.T) {
	calls := 0
	c := New(Config{Logger: testLogger(), Downloader: staticMedia("image/png", nil, &calls)})

	got := c.Classify(context.Background(), domain.RawEvent{Body: "hi"})

	assert.Equal(t, 0, calls)
	assert.Equal(t, "hi", got.Text)
	assert.Nil(t, got.Media)
}

func TestAccepts(t *testing.T) {
	assert.True(t, Accepts("image/jpeg"))
	assert.True(t, Accepts("image/gif"))
	assert.True(t, Accepts("Image/WebP"))
	assert.False(t, Accepts("application/pdf"))
	assert.False(t, Accepts("imagex"))
	assert.False(t, Accepts(""))
}
