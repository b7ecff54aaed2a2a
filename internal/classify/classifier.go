// Package classify turns raw inbound events into normalized text and media.
package classify

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"whatsbridge/internal/canon"
	"whatsbridge/internal/domain"
	"whatsbridge/internal/metrics"
)

// Placeholder texts for events without literal text.
const (
	PlaceholderImage    = "[image]"
	PlaceholderVideo    = "[video]"
	PlaceholderSticker  = "[sticker]"
	PlaceholderDocument = "[document]"
	PlaceholderUnknown  = "[unknown message]"
	PlaceholderEmpty    = "[empty message]"
)

// DefaultMaxMediaBytes caps the size of a retained attachment.
const DefaultMaxMediaBytes int64 = 16 << 20

// MediaDownloader is the part of domain.Connection the classifier needs.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, ev domain.RawEvent) (domain.Media, error)
}

type Config struct {
	Downloader MediaDownloader
	MaxBytes   int64         // 0 = DefaultMaxMediaBytes
	Timeout    time.Duration // 0 = no timeout beyond the connection's own
	Logger     *slog.Logger
}

// Content is the classifier's output. Text is never empty.
type Content struct {
	Text  string
	Media *domain.MediaRef
}

type Classifier struct {
	downloader MediaDownloader
	maxBytes   int64
	timeout    time.Duration
	logger     *slog.Logger
}

func New(cfg Config) *Classifier {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxMediaBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Classifier{
		downloader: cfg.Downloader,
		maxBytes:   cfg.MaxBytes,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

// Classify derives the message text and, for image attachments, the media.
// A failed download is logged and yields nil media; it never fails the event.
func (c *Classifier) Classify(ctx context.Context, ev domain.RawEvent) Content {
	out := Content{Text: Text(ev.Body, ev.HasMedia, ev.Kind)}
	if ev.HasMedia {
		out.Media = c.fetchMedia(ctx, ev)
	}
	return out
}

func (c *Classifier) fetchMedia(ctx context.Context, ev domain.RawEvent) *domain.MediaRef {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	media, err := c.downloader.DownloadMedia(ctx, ev)
	if err != nil {
		metrics.MediaFailures.Inc()
		c.logger.Warn("media download failed",
			"from", ev.From, "id", ev.ID, "kind", ev.Kind, "err", fmt.Errorf("%w: %w", domain.ErrMedia, err))
		return nil
	}

	if !Accepts(media.MimeType) {
		metrics.MediaDiscarded.Inc()
		c.logger.Debug("media discarded by policy", "from", ev.From, "mime", media.MimeType)
		return nil
	}
	if int64(len(media.Data)) > c.maxBytes {
		metrics.MediaDiscarded.Inc()
		c.logger.Warn("media discarded: too large",
			"from", ev.From, "mime", media.MimeType, "bytes", len(media.Data), "max", c.maxBytes)
		return nil
	}

	return &domain.MediaRef{
		MimeType: media.MimeType,
		Payload:  base64.StdEncoding.EncodeToString(media.Data),
	}
}

// Text applies the text rules: literal text wins, then a placeholder for the
// attachment kind, then the empty-message placeholder.
func Text(body string, hasMedia bool, kind domain.MediaKind) string {
	if body != "" {
		return canon.Text(body)
	}
	if !hasMedia {
		return PlaceholderEmpty
	}
	switch kind {
	case domain.KindImage:
		return PlaceholderImage
	case domain.KindVideo:
		return PlaceholderVideo
	case domain.KindSticker:
		return PlaceholderSticker
	case domain.KindDocument:
		return PlaceholderDocument
	default:
		return PlaceholderUnknown
	}
}

// Accepts reports whether a mime type is retained as media. Only the image
// family (gif included) is kept.
func Accepts(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
