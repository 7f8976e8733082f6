// Command keyseal encrypts a Kalshi RSA private key for use with
// kalshi.encrypted_key_path.
//
//	keyseal -in kalshi.pem -out kalshi.key.enc
//
// The password is read from -password or EDGEBOT_KALSHI_KEY_PASSWORD.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/alanyoungcy/kalshiedge/internal/crypto"
)

func main() {
	in := flag.String("in", "", "PEM-encoded private key")
	out := flag.String("out", "kalshi.key.enc", "sealed key output path")
	password := flag.String("password", "", "encryption password")
	verify := flag.Bool("verify", true, "decrypt the output once to check it")
	flag.Parse()

	if err := run(*in, *out, *password, *verify); err != nil {
		fmt.Fprintf(os.Stderr, "keyseal: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sealed key written to %s\n", *out)
}

func run(in, out, password string, verify bool) error {
	if in == "" {
		return fmt.Errorf("-in is required")
	}
	_ = godotenv.Load()
	if password == "" {
		password = os.Getenv("EDGEBOT_KALSHI_KEY_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("no password: pass -password or set EDGEBOT_KALSHI_KEY_PASSWORD")
	}

	pemBytes, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	sealed, err := crypto.Seal(pemBytes, password)
	if err != nil {
		return err
	}
	if verify {
		if _, err := crypto.Open(sealed, password); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
	}
	if err := os.WriteFile(out, sealed, 0o600); err != nil {
		return fmt.Errorf("write sealed key: %w", err)
	}
	return nil
}
