// key-init derives the operator signing key from a mnemonic and stores it
// in the encrypted secret store used by the ethereum backend.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/chainclass/defisim/pkg/secretstore"
)

const defaultDerivationPath = "m/44'/60'/0'/0/0"

func main() {
	_ = godotenv.Load()

	var (
		storePath = flag.String("store", getenv("DEFISIM_SECRET_STORE_PATH", "data/secrets"), "secret store directory")
		derivPath = flag.String("path", defaultDerivationPath, "BIP44 derivation path")
	)
	flag.Parse()

	encKey, err := secretstore.ParseKey(os.Getenv("DEFISIM_SECRET_STORE_KEY"))
	if err != nil {
		fatal(fmt.Errorf("DEFISIM_SECRET_STORE_KEY: %w", err))
	}
	if encKey == nil {
		fmt.Fprintln(os.Stderr, "warning: DEFISIM_SECRET_STORE_KEY is empty, the store will not be encrypted")
	}

	fmt.Fprintln(os.Stderr, "请输入助记词（12/15/18/21/24 个单词），输入完成后回车：")
	mnemonic := strings.TrimSpace(readLine())
	if mnemonic == "" {
		fatal(errors.New("mnemonic is empty"))
	}

	keyHex, address, err := deriveOperatorKey(mnemonic, *derivPath)
	if err != nil {
		fatal(err)
	}

	store, err := secretstore.Open(secretstore.OpenOptions{Path: *storePath, EncryptionKey: encKey})
	if err != nil {
		fatal(fmt.Errorf("open secret store: %w", err))
	}
	defer store.Close()

	if err := store.SetOperatorKeyHex(keyHex); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "operator key stored in %s (address %s)\n", *storePath, address)
}

func deriveOperatorKey(mnemonic, derivationPath string) (keyHex, address string, err error) {
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return "", "", fmt.Errorf("invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return "", "", fmt.Errorf("invalid derivation path: %w", err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return "", "", fmt.Errorf("derive failed: %w", err)
	}
	pk, err := w.PrivateKeyHex(acct)
	if err != nil {
		return "", "", fmt.Errorf("private key failed: %w", err)
	}
	return pk, acct.Address.Hex(), nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
