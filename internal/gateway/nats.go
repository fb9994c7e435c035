// Package gateway talks to the chat platform bridge over NATS. Inbound
// messages arrive on a queue subscription; deletes and posts are
// request/reply calls answered by the bridge.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"imagescan/internal/biz"
	"imagescan/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/nats-io/nats.go"
)

// ProviderSet is gateway providers.
var ProviderSet = wire.NewSet(
	NewClient,
	wire.Bind(new(biz.Platform), new(*Client)),
)

// NATS subjects shared with the platform bridge.
const (
	SubjectMessageCreate = "chat.message.create"
	SubjectMessageDelete = "chat.message.delete"
	SubjectMessagePost   = "chat.message.post"
)

// conn is the part of *nats.Conn the client uses.
type conn interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (subscription, error)
	Drain() error
	Close()
}

type subscription interface {
	Drain() error
	IsValid() bool
}

type natsConn struct {
	*nats.Conn
}

func (c natsConn) QueueSubscribe(subj, queue string, cb nats.MsgHandler) (subscription, error) {
	sub, err := c.Conn.QueueSubscribe(subj, queue, cb)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Client wraps the NATS connection.
type Client struct {
	conn           conn
	queueGroup     string
	requestTimeout time.Duration
	mu             sync.Mutex
	subs           []subscription
	log            *log.Helper
}

// NewClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewClient(c *conf.Gateway, logger log.Logger) (*Client, func(), error) {
	helper := log.NewHelper(logger)

	name, queue := c.Name, c.QueueGroup
	if name == "" {
		name = "imagescan"
	}
	if queue == "" {
		queue = "imagescan"
	}
	reconnectWait := c.ReconnectWait.AsDuration()
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := c.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1 // infinite reconnects
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				helper.Warnf("[nats] disconnected: %v", err)
			} else {
				helper.Warn("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			helper.Infof("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			helper.Info("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(c.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	helper.Infof("[nats] connected to %s", nc.ConnectedUrl())

	client := newClient(natsConn{nc}, queue, c.RequestTimeout.AsDuration(), logger)
	cleanup := func() {
		helper.Info("[nats] closing connection")
		nc.Close()
	}
	return client, cleanup, nil
}

func newClient(nc conn, queue string, timeout time.Duration, logger log.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		conn:           nc,
		queueGroup:     queue,
		requestTimeout: timeout,
		log:            log.NewHelper(logger),
	}
}

// SubscribeMessageCreate delivers every inbound message to handler. Members
// of the same queue group share the stream.
func (c *Client) SubscribeMessageCreate(handler func(msg *biz.Message)) error {
	sub, err := c.conn.QueueSubscribe(SubjectMessageCreate, c.queueGroup, func(m *nats.Msg) {
		var event messageCreate
		if err := json.Unmarshal(m.Data, &event); err != nil {
			c.log.Warnf("[nats] bad %s payload: %v", SubjectMessageCreate, err)
			return
		}
		handler(event.toBiz())
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectMessageCreate, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// StopReceiving drains every inbound subscription and waits until their
// pending handlers have run. The connection stays usable for requests.
func (c *Client) StopReceiving(ctx context.Context) error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			c.log.Warnf("[nats] drain subscription: %v", err)
		}
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for _, sub := range subs {
		for sub.IsValid() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
	return nil
}

// Drain flushes outstanding requests and closes the connection.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// DeleteMessage asks the bridge to delete a message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.request(ctx, SubjectMessageDelete, deleteRequest{
		ChannelID: channelID,
		MessageID: messageID,
	})
}

// PostMessage asks the bridge to post msg into a channel.
func (c *Client) PostMessage(ctx context.Context, channelID string, msg *biz.OutboundMessage) error {
	req := postRequest{
		ChannelID: channelID,
		ReplyTo:   msg.ReplyTo,
		Content:   msg.Content,
	}
	if msg.Embed != nil {
		req.Embed = &embed{
			Title:       msg.Embed.Title,
			Description: msg.Embed.Description,
			Color:       msg.Embed.Color,
		}
	}
	return c.request(ctx, SubjectMessagePost, req)
}

func (c *Client) request(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("nats request %s: %w", subject, err)
	}

	var rep reply
	if err := json.Unmarshal(msg.Data, &rep); err != nil {
		return fmt.Errorf("decode %s reply: %w", subject, err)
	}
	if !rep.OK {
		if rep.Error == "" {
			rep.Error = "rejected by bridge"
		}
		return errors.New(rep.Error)
	}
	return nil
}
