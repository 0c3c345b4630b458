package saltyrtc

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/opd-ai/saltyrtc/config"
	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/opd-ai/saltyrtc/signaling"
	"github.com/opd-ai/saltyrtc/tasks"
	"github.com/opd-ai/saltyrtc/transport"
)

// Options contains configuration options for creating a Client.
type Options struct {
	Role     signaling.Role
	RelayURL string
	// Dialer replaces the WebSocket dialer built from RelayURL.
	Dialer    transport.Dialer
	TLSConfig *tls.Config

	Keys             *crypto.KeyStore
	PeerPermanentKey []byte
	AuthToken        *crypto.AuthToken
	Trusted          bool
	ServerKey        []byte

	Tasks          []tasks.Task
	PingInterval   uint32
	ConnectTimeout time.Duration
	EventBuffer    int
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Role:           signaling.RoleInitiator,
		RelayURL:       "wss://localhost:8765",
		ConnectTimeout: 30 * time.Second,
		EventBuffer:    signaling.DefaultEventBuffer,
	}
}

// OptionsFromSettings builds Options from loaded file settings.
func OptionsFromSettings(s *config.Settings) (*Options, error) {
	opts := NewOptions()
	opts.RelayURL = s.URL()
	opts.Trusted = s.Trusted
	opts.PingInterval = s.PingInterval
	opts.ConnectTimeout = s.ConnectTimeout

	switch s.Role {
	case "initiator":
		opts.Role = signaling.RoleInitiator
	case "responder":
		opts.Role = signaling.RoleResponder
	default:
		return nil, fmt.Errorf("%w: unknown role %q", protocol.ErrArgument, s.Role)
	}

	var err error
	if opts.PeerPermanentKey, err = s.PeerKey(); err != nil {
		return nil, err
	}
	if opts.ServerKey, err = s.RelayKey(); err != nil {
		return nil, err
	}
	if opts.AuthToken, err = s.Token(); err != nil {
		return nil, err
	}
	if opts.Tasks, err = TasksByName(s.Tasks); err != nil {
		return nil, err
	}
	if opts.Keys, err = s.Keys(); err != nil {
		return nil, err
	}
	return opts, nil
}

// TasksByName creates the built-in tasks named in names, keeping their
// order.
func TasksByName(names []string) ([]tasks.Task, error) {
	out := make([]tasks.Task, 0, len(names))
	for _, name := range names {
		switch name {
		case tasks.RelayedDataName:
			out = append(out, tasks.NewRelayedData())
		default:
			return nil, fmt.Errorf("%w: unknown task %q", protocol.ErrArgument, name)
		}
	}
	return out, nil
}
