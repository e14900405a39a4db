package adapter

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/davgate/davgate/pkg/config"
)

// BuildTLSConfig turns the davmail.ssl.* settings into a tls.Config,
// or nil when no keystore is configured (plain TCP).
//
// MinVersion is pinned to TLS 1.0 so no enabled protocol version name
// starts with SSL (POODLE, CVE-2014-3566). Old mail clients still need
// 1.0; raising the floor further is a deployment decision.
func BuildTLSConfig(ssl config.SSLConfig) (*tls.Config, error) {
	if ssl.KeystoreFile == "" {
		return nil, nil
	}

	cert, err := loadKeystore(ssl)
	if err != nil {
		return nil, fmt.Errorf("keystore %s: %w", ssl.KeystoreFile, err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS10,
	}

	if ssl.NeedClientAuth {
		pool, err := loadTruststore(ssl)
		if err != nil {
			return nil, fmt.Errorf("truststore %s: %w", ssl.TruststoreFile, err)
		}
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = pool
	}

	return tlsConfig, nil
}

// loadKeystore reads the server certificate and key, PEM or PKCS#12
// depending on keystoreType.
func loadKeystore(ssl config.SSLConfig) (tls.Certificate, error) {
	data, err := os.ReadFile(ssl.KeystoreFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	if strings.EqualFold(ssl.KeystoreType, "PKCS12") {
		return pkcs12Certificate(data, ssl.KeystorePass)
	}
	return pemCertificate(data, ssl.KeyPass)
}

// pkcs12Certificate converts a PKCS#12 keystore into a tls.Certificate
// by round-tripping through PEM blocks; Decode would drop intermediate
// certificates in the bag.
func pkcs12Certificate(data []byte, password string) (tls.Certificate, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return tls.Certificate{}, err
	}

	var certPEM, keyPEM []byte
	for _, block := range blocks {
		encoded := pem.EncodeToMemory(block)
		if block.Type == "CERTIFICATE" {
			certPEM = append(certPEM, encoded...)
		} else {
			keyPEM = append(keyPEM, encoded...)
		}
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// pemCertificate loads a PEM keystore holding both certificate chain
// and private key, decrypting the key with keyPass when needed.
func pemCertificate(data []byte, keyPass string) (tls.Certificate, error) {
	var certPEM, keyPEM []byte
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			certPEM = append(certPEM, pem.EncodeToMemory(block)...)
			continue
		}
		if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy RFC 1423 keystores
			decrypted, err := x509.DecryptPEMBlock(block, []byte(keyPass)) //nolint:staticcheck
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("decrypt private key: %w", err)
			}
			block = &pem.Block{Type: block.Type, Bytes: decrypted}
		}
		keyPEM = append(keyPEM, pem.EncodeToMemory(block)...)
	}

	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return tls.Certificate{}, fmt.Errorf("keystore is missing certificate or key")
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// loadTruststore builds the client-certificate CA pool.
func loadTruststore(ssl config.SSLConfig) (*x509.CertPool, error) {
	if ssl.TruststoreFile == "" {
		return nil, fmt.Errorf("needClientAuth requires a truststore")
	}

	data, err := os.ReadFile(ssl.TruststoreFile)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	if strings.EqualFold(ssl.TruststoreType, "PKCS12") {
		blocks, err := pkcs12.ToPEM(data, ssl.TruststorePass)
		if err != nil {
			return nil, err
		}
		for _, block := range blocks {
			if block.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, err
			}
			pool.AddCert(cert)
		}
		return pool, nil
	}

	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no CA certificates found")
	}
	return pool, nil
}
