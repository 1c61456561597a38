// internal/wallet/wallet.go
package wallet

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"
)

// PopulateWallet stores the gateway identity for userName unless the wallet
// already holds it.
func PopulateWallet(w *gateway.Wallet, orgName, userName, certPath, keyDir string) error {
	if w.Exists(userName) {
		return nil
	}

	cert, err := os.ReadFile(filepath.Clean(certPath))
	if err != nil {
		return fmt.Errorf("read certificate: %w", err)
	}

	keyPath, err := findPrivateKey(keyDir)
	if err != nil {
		return err
	}
	key, err := os.ReadFile(filepath.Clean(keyPath))
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}

	return w.Put(userName, gateway.NewX509Identity(orgName+"MSP", string(cert), string(key)))
}

// findPrivateKey prefers the CA's *_sk naming and falls back to the first
// regular file in keyDir.
func findPrivateKey(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read keystore: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no private key found in directory %s", dir)
	}
	sort.Strings(files)
	for _, name := range files {
		if strings.HasSuffix(name, "_sk") {
			return filepath.Join(dir, name), nil
		}
	}
	return filepath.Join(dir, files[0]), nil
}
