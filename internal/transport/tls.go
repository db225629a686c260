package transport

import (
	"crypto/tls"
	"crypto/x509" //nolint:staticcheck // encrypted PEM support needs the deprecated DecryptPEMBlock
	"encoding/pem"
	"fmt"
	"os"
)

// LoadServerTLSConfig builds a server-side tls.Config from a cert/key
// file pair. If passphrase is non-empty, the key file is assumed to be
// an encrypted PEM block and is decrypted before parsing.
func LoadServerTLSConfig(certFile, keyFile string, passphrase []byte) (*tls.Config, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("transport: read cert file: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: read key file: %w", err)
	}

	if len(passphrase) > 0 {
		keyPEM, err = decryptPEMKey(keyPEM, passphrase)
		if err != nil {
			return nil, err
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("transport: parse TLS keypair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func decryptPEMKey(keyPEM, passphrase []byte) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("transport: no PEM block found in key file")
	}
	if !x509.IsEncryptedPEMBlock(block) {
		return keyPEM, nil
	}
	der, err := x509.DecryptPEMBlock(block, passphrase)
	if err != nil {
		return nil, fmt.Errorf("transport: decrypt private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

// ClientTLSConfig builds a client-side tls.Config for wss:// dials.
// insecureSkipVerify is wired to the CLI's --insecure-tls flag for
// self-signed deployments and must never default to true.
func ClientTLSConfig(insecureSkipVerify bool) *tls.Config {
	return &tls.Config{InsecureSkipVerify: insecureSkipVerify, MinVersion: tls.VersionTLS12}
}
