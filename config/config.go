// Package config loads saltyrtc client and relay settings from an INI
// file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/sirupsen/logrus"
	"github.com/vaughan0/go-ini"
)

var errNotFound = errors.New("not found")

// Settings is the collection of all saltyrtc settings.
type Settings struct {
	// relay section
	Host      string // relay host name
	Port      uint16 // relay port
	Scheme    string // ws or wss
	ServerKey string // hex permanent key the relay must prove, optional

	// identity section
	SecretKey     string // hex permanent secret key
	SecretKeyFile string // file holding the hex secret key

	// peer section
	Role      string // initiator or responder
	PublicKey string // hex permanent key of the peer
	AuthToken string // hex auth token
	Trusted   bool   // the initiator already trusts our key

	// session section
	Tasks          []string      // task names, most preferred first
	PingInterval   uint32        // seconds, 0 disables pings
	ConnectTimeout time.Duration // bound for the server handshake
	LogLevel       string        // logrus level name
}

// New returns the default settings.
func New() *Settings {
	return &Settings{
		Host:           "localhost",
		Port:           8765,
		Scheme:         "wss",
		Role:           "initiator",
		Tasks:          []string{"v0.relayed-data.tasks.saltyrtc.org"},
		ConnectTimeout: 30 * time.Second,
		LogLevel:       "info",
	}
}

// Load reads filename, expanding ~ to the current user's home directory.
func Load(filename string) (*Settings, error) {
	filename, err := homedir.Expand(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads settings from r on top of the defaults and validates them.
func Parse(r io.Reader) (*Settings, error) {
	cfg, err := ini.Load(r)
	if err != nil {
		return nil, err
	}
	s := New()
	if err := s.apply(cfg); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) apply(cfg ini.File) error {
	// relay
	if v, ok := cfg.Get("relay", "host"); ok {
		s.Host = v
	}
	if v, ok := cfg.Get("relay", "port"); ok {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("[relay]port invalid: %v", err)
		}
		s.Port = uint16(port)
	}
	if v, ok := cfg.Get("relay", "scheme"); ok {
		s.Scheme = strings.ToLower(v)
	}
	if v, ok := cfg.Get("relay", "server_key"); ok {
		s.ServerKey = v
	}

	// identity
	if v, ok := cfg.Get("identity", "secret_key"); ok {
		s.SecretKey = v
	}
	if v, ok := cfg.Get("identity", "secret_key_file"); ok {
		path, err := homedir.Expand(v)
		if err != nil {
			return fmt.Errorf("[identity]secret_key_file invalid: %v", err)
		}
		s.SecretKeyFile = path
	}

	// peer
	if v, ok := cfg.Get("peer", "role"); ok {
		s.Role = strings.ToLower(v)
	}
	if v, ok := cfg.Get("peer", "public_key"); ok {
		s.PublicKey = v
	}
	if v, ok := cfg.Get("peer", "auth_token"); ok {
		s.AuthToken = v
	}
	if err := iniBool(cfg, &s.Trusted, "peer", "trusted"); err != nil && err != errNotFound {
		return err
	}

	// session
	if v, ok := cfg.Get("session", "tasks"); ok {
		s.Tasks = splitList(v)
	}
	if v, ok := cfg.Get("session", "ping_interval"); ok {
		ping, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("[session]ping_interval invalid: %v", err)
		}
		s.PingInterval = uint32(ping)
	}
	if v, ok := cfg.Get("session", "connect_timeout"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("[session]connect_timeout invalid: %v", err)
		}
		s.ConnectTimeout = d
	}
	if v, ok := cfg.Get("session", "log_level"); ok {
		s.LogLevel = v
	}
	return nil
}

// Validate checks values that have a fixed set of choices.
func (s *Settings) Validate() error {
	switch s.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("%w: [relay]scheme must be ws or wss, got %q", protocol.ErrArgument, s.Scheme)
	}
	switch s.Role {
	case "initiator", "responder":
	default:
		return fmt.Errorf("%w: [peer]role must be initiator or responder, got %q", protocol.ErrArgument, s.Role)
	}
	if s.SecretKey != "" && s.SecretKeyFile != "" {
		return fmt.Errorf("%w: set only one of [identity]secret_key and secret_key_file", protocol.ErrArgument)
	}
	if len(s.Tasks) == 0 {
		return fmt.Errorf("%w: [session]tasks must not be empty", protocol.ErrArgument)
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: [session]connect_timeout must be positive", protocol.ErrArgument)
	}
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%w: [session]log_level: %v", protocol.ErrArgument, err)
	}
	return nil
}

// URL returns the relay base URL.
func (s *Settings) URL() string {
	u := url.URL{
		Scheme: s.Scheme,
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port))),
	}
	return u.String()
}

// Level returns the configured log level.
func (s *Settings) Level() logrus.Level {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Keys returns the configured permanent key pair, or a fresh one if no
// secret key is configured.
func (s *Settings) Keys() (*crypto.KeyStore, error) {
	switch {
	case s.SecretKey != "":
		return crypto.NewKeyStoreFromSecretKeyHex(s.SecretKey)
	case s.SecretKeyFile != "":
		b, err := os.ReadFile(s.SecretKeyFile)
		if err != nil {
			return nil, err
		}
		defer crypto.ZeroBytes(b)
		return crypto.NewKeyStoreFromSecretKeyHex(strings.TrimSpace(string(b)))
	}
	return crypto.NewKeyStore()
}

// PeerKey decodes the peer's permanent key. It returns nil if none is set.
func (s *Settings) PeerKey() ([]byte, error) {
	return decodeKey(s.PublicKey, "[peer]public_key")
}

// RelayKey decodes the pinned relay key. It returns nil if none is set.
func (s *Settings) RelayKey() ([]byte, error) {
	return decodeKey(s.ServerKey, "[relay]server_key")
}

// Token decodes the auth token. It returns nil if none is set.
func (s *Settings) Token() (*crypto.AuthToken, error) {
	if s.AuthToken == "" {
		return nil, nil
	}
	return crypto.NewAuthTokenFromHex(s.AuthToken)
}

func decodeKey(v, name string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid hex: %v", protocol.ErrInvalidKey, name, err)
	}
	if err := crypto.ValidatePublicKey(key); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return key, nil
}

func iniBool(cfg ini.File, p *bool, section, key string) error {
	v, ok := cfg.Get(section, key)
	if !ok {
		return errNotFound
	}
	switch strings.ToLower(v) {
	case "yes", "true":
		*p = true
	case "no", "false":
		*p = false
	default:
		return fmt.Errorf("[%v]%v must be yes or no", section, key)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
