// Package config parses the voice relay's command-line surface and
// loads the TLS certificate/key pair the control listener serves. Flag
// parsing uses stdlib flag directly rather than a CLI framework, matching
// how small single-binary servers in this codebase configure themselves.
// The certificate loader modernizes grumble's NewTLSListener (tlsserver.go),
// which predates the tls.X509KeyPair helper entirely.
package config

import (
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// MaxClientCapacity is the voice-target slot ceiling the wire format's
// 5-bit target id imposes; CLIENT_CAPACITY is
// clamped to it regardless of what the environment requests.
const MaxClientCapacity = 32

// DefaultClientCapacity is the nominal CLIENT_CAPACITY default. It exceeds
// MaxClientCapacity, so clientCapacityFromEnv returns MaxClientCapacity
// when the environment variable is unset.
const DefaultClientCapacity = 2048

// Config holds the parsed CLI flags and derived values needed to start
// the server.
type Config struct {
	Listen       string // default "0.0.0.0:64738", TCP and UDP both bind here
	HTTPListen   string
	HTTPUser     string
	HTTPPassword []byte // bcrypt hash, never the cleartext flag value
	HTTPS        bool
	KeyPath      string
	CertPath     string

	ClientCapacity int
}

// Parse reads args (typically os.Args[1:]) and the CLIENT_CAPACITY
// environment variable into a Config.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("voxrelay", flag.ContinueOnError)

	listen := fs.String("listen", "0.0.0.0:64738", "TCP/UDP listen address for the voice server")
	httpListen := fs.String("http-listen", "", "listen address for the admin HTTP interface (disabled if empty)")
	httpUser := fs.String("http-user", "", "basic-auth username for the admin HTTP interface")
	httpPassword := fs.String("http-password", "", "basic-auth password for the admin HTTP interface")
	https := fs.Bool("https", false, "serve the admin HTTP interface over TLS using --key/--cert")
	keyPath := fs.String("key", "", "path to the PEM-encoded TLS private key")
	certPath := fs.String("cert", "", "path to the PEM-encoded TLS certificate")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Listen:     *listen,
		HTTPListen: *httpListen,
		HTTPUser:   *httpUser,
		HTTPS:      *https,
		KeyPath:    *keyPath,
		CertPath:   *certPath,
	}

	if *httpPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*httpPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("config: hashing http password: %w", err)
		}
		cfg.HTTPPassword = hash
	}

	cfg.ClientCapacity = clientCapacityFromEnv()

	return cfg, nil
}

// clientCapacityFromEnv mirrors the original Rust server's
// std::env::var("CLIENT_CAPACITY") read (original_source client.rs:75),
// clamped to the wire format's 32-slot ceiling.
func clientCapacityFromEnv() int {
	raw := os.Getenv("CLIENT_CAPACITY")
	if raw == "" {
		return MaxClientCapacity
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return MaxClientCapacity
	}
	if n > MaxClientCapacity {
		return MaxClientCapacity
	}
	return n
}

// LoadTLSConfig reads the certificate/key pair at certPath/keyPath and
// builds the tls.Config the control listener serves, replacing grumble's
// manual PEM/PKCS1 parsing (tlsserver.go's NewTLSListener) with the
// standard library's own pairing helper.
func LoadTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("config: loading TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
