// Command saltyrtc-client connects to a relay as initiator or responder
// and exchanges lines of text with the peer over the relayed data task.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/ogier/pflag"
	"github.com/opd-ai/saltyrtc"
	"github.com/opd-ai/saltyrtc/config"
	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/signaling"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultConfig = "~/.saltyrtc/client.conf"

func main() {
	pflag.Usage = printUsage

	cfgFile := pflag.StringP("config", "c", defaultConfig, "config file")
	relayURL := pflag.StringP("relay", "r", "", "relay URL, overrides the config file")
	role := pflag.String("role", "", "initiator or responder, overrides the config file")
	peerKey := pflag.StringP("peer-key", "p", "", "hex permanent key of the peer")
	token := pflag.StringP("token", "t", "", "hex auth token given by the initiator")
	pflag.Parse()

	settings, err := loadSettings(*cfgFile)
	if err != nil {
		fatal(err)
	}
	if *role != "" {
		settings.Role = *role
	}
	if *peerKey != "" {
		settings.PublicKey = *peerKey
	}
	if *token != "" {
		settings.AuthToken = *token
	}
	if err := settings.Validate(); err != nil {
		fatal(err)
	}
	logrus.SetLevel(settings.Level())

	opts, err := saltyrtc.OptionsFromSettings(settings)
	if err != nil {
		fatal(err)
	}
	if *relayURL != "" {
		opts.RelayURL = *relayURL
	}

	client, err := saltyrtc.New(opts)
	if err != nil {
		fatal(err)
	}
	defer client.Kill()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, client); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func loadSettings(path string) (*config.Settings, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(expanded); errors.Is(err, os.ErrNotExist) && path == defaultConfig {
		return config.New(), nil
	}
	return config.Load(expanded)
}

func run(ctx context.Context, client *saltyrtc.Client) error {
	if err := client.Connect(ctx); err != nil {
		return err
	}
	if client.Role() == signaling.RoleInitiator {
		fmt.Printf("public key: %x\n", client.PublicPermanentKey())
		if tok := client.AuthToken(); tok != nil {
			fmt.Printf("auth token: %x\n", tok)
			crypto.ZeroBytes(tok)
		}
	}
	if err := client.WaitOpen(ctx); err != nil {
		return err
	}
	rd := client.RelayedData()
	if rd == nil {
		return fmt.Errorf("negotiated task %q is not supported", client.Task().Name())
	}
	fmt.Fprintln(os.Stderr, "connected, type lines to send")

	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan string)

	rd.OnData(func(payload interface{}) {
		switch p := payload.(type) {
		case string:
			fmt.Println(p)
		case []byte:
			fmt.Println(string(p))
		default:
			fmt.Printf("%v\n", p)
		}
	})

	// stdin reader; it cannot be interrupted and is left behind on exit.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	g.Go(func() error {
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					client.Disconnect()
					return nil
				}
				if err := rd.Send(line); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			case <-client.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case ev := <-client.Events():
				switch ev.Kind {
				case signaling.EventSendError:
					logrus.WithField("peer", ev.PeerID).Warn("Relay could not deliver a message")
				case signaling.EventClosed:
					logrus.WithField("code", ev.Code.String()).Info("Session closed")
					return nil
				}
			case <-client.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return g.Wait()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "saltyrtc-client:", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: "+os.Args[0]+" [OPTION]...")
	fmt.Fprintln(os.Stderr, "Flags:")
	pflag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "    "+os.Args[0]+" --relay wss://relay.example.org:8765")
	fmt.Fprintln(os.Stderr, "    "+os.Args[0]+" --relay wss://relay.example.org:8765 --role responder --peer-key KEY --token TOKEN")
}
