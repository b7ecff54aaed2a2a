// Package whatsapp implements domain.Connection on top of whatsmeow, with the
// device session kept in a local SQLite database.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"whatsbridge/internal/domain"
)

const qrEventCode = "code"

const logoutConnectTimeout = 10 * time.Second

type Config struct {
	SessionDB string
	// PrintQR renders scan codes on QRWriter (stdout by default).
	PrintQR  bool
	QRWriter io.Writer
	Logger   *slog.Logger
}

// Client is the WhatsApp connection.
type Client struct {
	cfg    Config
	logger *slog.Logger
	db     *sql.DB
	wa     *whatsmeow.Client

	mu       sync.RWMutex
	listener domain.Listener
}

var _ domain.Connection = (*Client)(nil)

// New opens the session store and prepares a client for the stored device,
// or a fresh one if none has been paired yet. It does not connect.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QRWriter == nil {
		cfg.QRWriter = os.Stdout
	}

	db, container, err := openStore(ctx, cfg.SessionDB, newLogger(cfg.Logger, "store"))
	if err != nil {
		return nil, err
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, newLogger(cfg.Logger, "client"))
	// Reconnects are driven by the session supervisor.
	wa.EnableAutoReconnect = false

	c := &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		db:     db,
		wa:     wa,
	}
	wa.AddEventHandler(c.handleEvent)
	return c, nil
}

func (c *Client) Subscribe(l domain.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// Paired reports whether a device session is stored.
func (c *Client) Paired() bool {
	return c.wa.Store.ID != nil
}

// Initialize connects. An unpaired device first opens a scan-code channel
// whose codes are reported through the listener.
func (c *Client) Initialize(ctx context.Context) error {
	if c.wa.IsConnected() {
		c.wa.Disconnect()
	}

	if !c.Paired() {
		qrCh, err := c.wa.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open scan-code channel: %w", err)
		}
		go c.watchQR(qrCh)
	}

	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.logger.Info("whatsapp connecting", "paired", c.Paired())
	return nil
}

func (c *Client) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		l := c.currentListener()
		switch item.Event {
		case qrEventCode:
			if c.cfg.PrintQR {
				printQR(c.cfg.QRWriter, item.Code)
			}
			if l != nil {
				l.OnQR(item.Code)
			}
		case whatsmeow.QRChannelSuccess.Event:
			c.logger.Info("device paired")
		case whatsmeow.QRChannelTimeout.Event:
			if l != nil {
				l.OnDisconnected("scan timed out")
			}
		default:
			reason := item.Event
			if item.Error != nil {
				reason = fmt.Sprintf("%s: %v", item.Event, item.Error)
			}
			if l != nil {
				l.OnAuthFailure(reason)
			}
		}
	}
}

func (c *Client) GetContact(ctx context.Context, addr string) (domain.Contact, error) {
	jid, err := toJID(addr)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("%w: %w", domain.ErrLookup, err)
	}
	info, err := c.wa.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("%w: %w", domain.ErrLookup, err)
	}
	if !info.Found {
		return domain.Contact{}, domain.ErrContactNotFound
	}
	return domain.Contact{PushName: info.PushName, FullName: info.FullName}, nil
}

func (c *Client) SendText(ctx context.Context, addr, text string) error {
	jid, err := toJID(addr)
	if err != nil {
		return err
	}
	resp, err := c.wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	c.logger.Debug("message accepted by server", "to", addr, "id", resp.ID)
	return nil
}

func (c *Client) DownloadMedia(ctx context.Context, ev domain.RawEvent) (domain.Media, error) {
	msg, ok := ev.Handle.(*waE2E.Message)
	if !ok || msg == nil {
		return domain.Media{}, fmt.Errorf("%w: event %s has no message handle", domain.ErrMedia, ev.ID)
	}
	attachment, mime := downloadable(msg)
	if attachment == nil {
		return domain.Media{}, fmt.Errorf("%w: event %s has no attachment", domain.ErrMedia, ev.ID)
	}
	data, err := c.wa.Download(ctx, attachment)
	if err != nil {
		return domain.Media{}, fmt.Errorf("%w: %w", domain.ErrMedia, err)
	}
	return domain.Media{MimeType: mime, Data: data}, nil
}

// Logout unlinks the device. The server is told when a connection can be
// made within logoutConnectTimeout; otherwise only the local session is removed.
func (c *Client) Logout(ctx context.Context) error {
	if !c.Paired() {
		return nil
	}
	if !c.wa.IsConnected() {
		if err := c.wa.Connect(); err != nil {
			c.logger.Warn("connect for logout failed, removing local session only", "err", err)
		} else if !c.wa.WaitForConnection(logoutConnectTimeout) {
			c.logger.Warn("server not reachable, removing local session only")
		}
	}
	if c.wa.IsLoggedIn() {
		if err := c.wa.Logout(ctx); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		return nil
	}
	if err := c.wa.Store.Delete(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.wa.Disconnect()
	return c.db.Close()
}

func (c *Client) currentListener() domain.Listener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listener
}

// handleEvent runs on whatsmeow's event goroutine.
func (c *Client) handleEvent(evt any) {
	l := c.currentListener()
	if l == nil {
		return
	}
	switch e := evt.(type) {
	case *events.Connected:
		l.OnReady()
	case *events.Disconnected:
		l.OnDisconnected("connection closed")
	case *events.StreamReplaced:
		l.OnDisconnected("session opened elsewhere")
	case *events.LoggedOut:
		reason := fmt.Sprintf("logged out: %v", e.Reason)
		if e.OnConnect {
			l.OnAuthFailure(reason)
		} else {
			l.OnDisconnected(reason)
		}
	case *events.ConnectFailure:
		l.OnAuthFailure(fmt.Sprintf("connect failure %v: %s", e.Reason, e.Message))
	case *events.TemporaryBan:
		l.OnAuthFailure(e.String())
	case *events.PairSuccess:
		c.logger.Info("pairing succeeded", "jid", e.ID.String(), "platform", e.Platform)
	case *events.Message:
		l.OnMessage(toRawEvent(e, c.chatAddress(e.Info.Chat)))
	}
}

// chatAddress renders the chat JID, mapping hidden-user (LID) chats to their
// phone-number JID when the mapping is known.
func (c *Client) chatAddress(chat types.JID) string {
	if chat.Server == types.HiddenUserServer && c.wa != nil {
		pn, err := c.wa.Store.LIDs.GetPNForLID(context.Background(), chat)
		if err == nil && !pn.IsEmpty() {
			return fromJID(pn)
		}
	}
	return fromJID(chat)
}
