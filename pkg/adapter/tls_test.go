package adapter

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davgate/davgate/pkg/config"
)

// writeSelfSignedPEM writes a combined cert+key PEM keystore and
// returns its path and the certificate PEM alone.
func writeSelfSignedPEM(t *testing.T) (keystore string, certPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	keystore = filepath.Join(t.TempDir(), "keystore.pem")
	require.NoError(t, os.WriteFile(keystore, append(certPEM, keyPEM...), 0o600))
	return keystore, certPEM
}

func TestBuildTLSConfig_NoKeystoreMeansPlainTCP(t *testing.T) {
	cfg, err := BuildTLSConfig(config.SSLConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestBuildTLSConfig_PEMKeystore(t *testing.T) {
	keystore, _ := writeSelfSignedPEM(t)

	cfg, err := BuildTLSConfig(config.SSLConfig{
		KeystoreFile: keystore,
		KeystoreType: "PEM",
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Len(t, cfg.Certificates, 1)
	// SSLv3 must stay disabled regardless of keystore contents.
	assert.GreaterOrEqual(t, cfg.MinVersion, uint16(tls.VersionTLS10))
	assert.Equal(t, tls.NoClientCert, cfg.ClientAuth)
}

func TestBuildTLSConfig_ClientAuthRequiresTruststore(t *testing.T) {
	keystore, _ := writeSelfSignedPEM(t)

	_, err := BuildTLSConfig(config.SSLConfig{
		KeystoreFile:   keystore,
		KeystoreType:   "PEM",
		NeedClientAuth: true,
	})
	assert.Error(t, err)
}

func TestBuildTLSConfig_ClientAuthWithTruststore(t *testing.T) {
	keystore, certPEM := writeSelfSignedPEM(t)

	truststore := filepath.Join(t.TempDir(), "truststore.pem")
	require.NoError(t, os.WriteFile(truststore, certPEM, 0o600))

	cfg, err := BuildTLSConfig(config.SSLConfig{
		KeystoreFile:   keystore,
		KeystoreType:   "PEM",
		NeedClientAuth: true,
		TruststoreFile: truststore,
		TruststoreType: "PEM",
	})
	require.NoError(t, err)

	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
	assert.NotNil(t, cfg.ClientCAs)
}

func TestBuildTLSConfig_MissingKeystoreFile(t *testing.T) {
	_, err := BuildTLSConfig(config.SSLConfig{
		KeystoreFile: filepath.Join(t.TempDir(), "absent.pem"),
	})
	assert.Error(t, err)
}
