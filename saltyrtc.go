package saltyrtc

import (
	"context"
	"fmt"
	"time"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/opd-ai/saltyrtc/signaling"
	"github.com/opd-ai/saltyrtc/tasks"
	"github.com/opd-ai/saltyrtc/transport"
	"github.com/sirupsen/logrus"
)

// Client is one SaltyRTC session connected to a relay.
type Client struct {
	*signaling.Signaling

	connectTimeout time.Duration
}

// New creates a new Client with the given options.
//
// When options is nil, NewOptions is used; a default initiator then
// generates its key pair and auth token itself.
func New(options *Options) (*Client, error) {
	if options == nil {
		options = NewOptions()
	}
	if len(options.Tasks) == 0 {
		options.Tasks = []tasks.Task{tasks.NewRelayedData()}
	}

	dialer := options.Dialer
	if dialer == nil {
		if options.RelayURL == "" {
			return nil, fmt.Errorf("%w: a relay URL or dialer is required", protocol.ErrArgument)
		}
		dialer = &transport.WebSocketDialer{URL: options.RelayURL, TLSConfig: options.TLSConfig}
	}

	sigOpts := &signaling.Options{
		Dialer:           dialer,
		Keys:             options.Keys,
		PeerPermanentKey: options.PeerPermanentKey,
		AuthToken:        options.AuthToken,
		Trusted:          options.Trusted,
		ServerKey:        options.ServerKey,
		Tasks:            options.Tasks,
		PingInterval:     options.PingInterval,
		EventBuffer:      options.EventBuffer,
	}

	var sig *signaling.Signaling
	var err error
	switch options.Role {
	case signaling.RoleInitiator:
		sig, err = signaling.NewInitiator(sigOpts)
	case signaling.RoleResponder:
		sig, err = signaling.NewResponder(sigOpts)
	default:
		return nil, fmt.Errorf("%w: unknown role %v", protocol.ErrArgument, options.Role)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"role":     options.Role.String(),
		"relay":    options.RelayURL,
	}).Info("Created SaltyRTC client")

	return &Client{Signaling: sig, connectTimeout: options.ConnectTimeout}, nil
}

// Connect runs the server handshake, bounded by the configured connect
// timeout as well as ctx.
func (c *Client) Connect(ctx context.Context) error {
	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}
	return c.Signaling.Connect(ctx)
}

// RelayedData returns the relayed data task once it has been negotiated,
// else nil.
func (c *Client) RelayedData() *tasks.RelayedData {
	rd, _ := c.Task().(*tasks.RelayedData)
	return rd
}

// Kill disconnects the client and releases its key material.
func (c *Client) Kill() {
	c.Disconnect()
}
