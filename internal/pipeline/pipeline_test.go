package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbridge/internal/bus"
	"whatsbridge/internal/classify"
	"whatsbridge/internal/domain"
	"whatsbridge/internal/identity"
)

// fakeConn serves contact lookups and downloads from fixed tables.
type fakeConn struct {
	contacts map[string]domain.Contact
	media    map[string]domain.Media
}

func (f *fakeConn) GetContact(_ context.Context, addr string) (domain.Contact, error) {
	c, ok := f.contacts[addr]
	if !ok {
		return domain.Contact{}, domain.ErrContactNotFound
	}
	return c, nil
}

func (f *fakeConn) DownloadMedia(_ context.Context, ev domain.RawEvent) (domain.Media, error) {
	m, ok := f.media[ev.ID]
	if !ok {
		return domain.Media{}, errors.New("download failed")
	}
	return m, nil
}

type collector struct {
	mu   sync.Mutex
	msgs []domain.NormalizedMessage
}

func (c *collector) PublishMessage(msg domain.NormalizedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) snapshot() []domain.NormalizedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.NormalizedMessage(nil), c.msgs...)
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newPipeline(conn *fakeConn, src Source, out *collector, echoes bool) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{
		Source:        src,
		Resolver:      identity.New(identity.Config{Lookup: conn, Logger: logger}),
		Classifier:    classify.New(classify.Config{Downloader: conn, Logger: logger}),
		Publisher:     out,
		IncludeEchoes: echoes,
		Now:           func() time.Time { return fixedNow },
		Logger:        logger,
	})
}

func TestProcess_TextFromUnknownContact(t *testing.T) {
	out := &collector{}
	p := newPipeline(&fakeConn{}, nil, out, false)

	p.Process(context.Background(), domain.RawEvent{ID: "1", From: "36301234567@c.us", Body: "Szia"})

	require.Len(t, out.msgs, 1)
	assert.Equal(t, domain.NormalizedMessage{
		SenderDisplayName: "Hanna",
		Text:              "Szia",
		TimestampMillis:   fixedNow.UnixMilli(),
		SenderAddress:     "36301234567@c.us",
	}, out.msgs[0])
}

func TestProcess_StickerWithFailedDownload(t *testing.T) {
	out := &collector{}
	conn := &fakeConn{contacts: map[string]domain.Contact{"1@c.us": {PushName: "Anna"}}}
	p := newPipeline(conn, nil, out, false)

	p.Process(context.Background(), domain.RawEvent{ID: "s", From: "1@c.us", HasMedia: true, Kind: domain.KindSticker})

	require.Len(t, out.msgs, 1)
	assert.Equal(t, "Anna", out.msgs[0].SenderDisplayName)
	assert.Equal(t, classify.PlaceholderSticker, out.msgs[0].Text)
	assert.Nil(t, out.msgs[0].Media)
}

func TestProcess_ImageAttached(t *testing.T) {
	out := &collector{}
	conn := &fakeConn{
		contacts: map[string]domain.Contact{"1@c.us": {FullName: "Anna Kovács"}},
		media:    map[string]domain.Media{"img": {MimeType: "image/jpeg", Data: []byte("abc")}},
	}
	p := newPipeline(conn, nil, out, false)

	p.Process(context.Background(), domain.RawEvent{ID: "img", From: "1@c.us", HasMedia: true, Kind: domain.KindImage})

	require.Len(t, out.msgs, 1)
	assert.Equal(t, "Anna Kovács", out.msgs[0].SenderDisplayName)
	assert.Equal(t, classify.PlaceholderImage, out.msgs[0].Text)
	require.NotNil(t, out.msgs[0].Media)
	assert.Equal(t, &domain.MediaRef{MimeType: "image/jpeg", Payload: "YWJj"}, out.msgs[0].Media)
}

func TestProcess_Echoes(t *testing.T) {
	ev := domain.RawEvent{ID: "e", From: "1@c.us", Body: "sent from phone", FromMe: true}

	out := &collector{}
	newPipeline(&fakeConn{}, nil, out, false).Process(context.Background(), ev)
	assert.Empty(t, out.msgs)

	out = &collector{}
	newPipeline(&fakeConn{}, nil, out, true).Process(context.Background(), ev)
	require.Len(t, out.msgs, 1)
	assert.True(t, out.msgs[0].IsOutgoingEcho)
}

func TestRun_PreservesArrivalOrder(t *testing.T) {
	q := bus.NewQueue(10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	out := &collector{}
	p := newPipeline(&fakeConn{}, q, out, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	bodies := []string{"one", "two", "three", "four", "five"}
	for i, b := range bodies {
		q.Publish(domain.RawEvent{ID: b, From: "1@c.us", Body: b, HasMedia: i%2 == 1, Kind: domain.KindVideo})
	}

	require.Eventually(t, func() bool { return len(out.snapshot()) == len(bodies) }, 2*time.Second, 5*time.Millisecond)
	for i, msg := range out.snapshot() {
		assert.Equal(t, bodies[i], msg.Text)
	}

	q.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after source closed")
	}
}

func TestRun_DrainsQueuedEventsWhenSourceCloses(t *testing.T) {
	q := bus.NewQueue(10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	out := &collector{}
	p := newPipeline(&fakeConn{}, q, out, false)

	bodies := []string{"a", "b", "c", "d"}
	for _, b := range bodies {
		q.Publish(domain.RawEvent{ID: b, From: "1@c.us", Body: b})
	}
	q.Close()

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after source closed")
	}

	got := out.snapshot()
	require.Len(t, got, len(bodies))
	for i, msg := range got {
		assert.Equal(t, bodies[i], msg.Text)
	}
	assert.Zero(t, q.Len())
}

func TestRun_LogsPendingEventsOnCancel(t *testing.T) {
	q := bus.NewQueue(10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	q.Publish(domain.RawEvent{ID: "x", From: "1@c.us", Body: "x"})
	q.Publish(domain.RawEvent{ID: "y", From: "1@c.us", Body: "y"})

	var logged strings.Builder
	p := New(Config{
		Source:     q,
		Resolver:   identity.New(identity.Config{Lookup: &fakeConn{}}),
		Classifier: classify.New(classify.Config{Downloader: &fakeConn{}}),
		Publisher:  &collector{},
		Logger:     slog.New(slog.NewTextHandler(&logged, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	assert.Contains(t, logged.String(), "pending=2")
	assert.Equal(t, 2, q.Len())
}
