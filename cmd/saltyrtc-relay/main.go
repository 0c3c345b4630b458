// Command saltyrtc-relay runs a SaltyRTC relay server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/ogier/pflag"
	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/relay"
	"github.com/sirupsen/logrus"
)

func main() {
	pflag.Usage = printUsage

	listen := pflag.StringP("listen", "l", ":8765", "address to listen on")
	keyFile := pflag.StringP("key-file", "k", "", "file holding the hex permanent secret key")
	keygen := pflag.Bool("keygen", false, "print a new secret key and exit")
	handshakeTimeout := pflag.Duration("handshake-timeout", 30*time.Second, "time a client has to finish the server handshake")
	maxResponders := pflag.Int("max-responders", 254, "responders allowed on one path")
	logLevel := pflag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pflag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fatal(err)
	}
	logrus.SetLevel(level)

	if *keygen {
		keys, err := crypto.NewKeyStore()
		if err != nil {
			fatal(err)
		}
		sk := keys.SecretKey()
		fmt.Printf("secret key: %x\npublic key: %s\n", sk, keys.PublicKeyHex())
		crypto.ZeroBytes(sk)
		return
	}

	keys, err := loadKeys(*keyFile)
	if err != nil {
		fatal(err)
	}

	opts := relay.NewOptions()
	opts.HandshakeTimeout = *handshakeTimeout
	opts.MaxResponders = *maxResponders
	srv := relay.NewServer(keys, opts)
	defer srv.Close()

	logrus.WithFields(logrus.Fields{
		"listen":     *listen,
		"public_key": keys.PublicKeyHex(),
	}).Info("Starting relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.ListenAndServe(ctx, *listen); err != nil {
		fatal(err)
	}
}

func loadKeys(path string) (*crypto.KeyStore, error) {
	if path == "" {
		logrus.Warn("No key file given, using an ephemeral relay key")
		return crypto.NewKeyStore()
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(b)
	return crypto.NewKeyStoreFromSecretKeyHex(strings.TrimSpace(string(b)))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "saltyrtc-relay:", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: "+os.Args[0]+" [OPTION]...")
	fmt.Fprintln(os.Stderr, "Flags:")
	pflag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "Example:")
	fmt.Fprintln(os.Stderr, "    "+os.Args[0]+" --listen :8765 --key-file ~/.saltyrtc/relay.key")
}
