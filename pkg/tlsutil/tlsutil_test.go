package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/autoprocess/errors"
)

// generateTestCert creates a self-signed certificate for localhost.
func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   "localhost",
		},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}

// setupTestFiles writes a certificate, its key and the same certificate as a CA.
func setupTestFiles(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()

	tmpDir := t.TempDir()
	certPEM, keyPEM := generateTestCert(t)

	certFile = filepath.Join(tmpDir, "cert.pem")
	keyFile = filepath.Join(tmpDir, "key.pem")
	caFile = filepath.Join(tmpDir, "ca.pem")

	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644))
	return certFile, keyFile, caFile
}

func TestLoadServerTLSConfig(t *testing.T) {
	certFile, keyFile, _ := setupTestFiles(t)

	tests := []struct {
		name    string
		cfg     ServerConfig
		wantNil bool
		wantErr bool
	}{
		{name: "disabled", cfg: ServerConfig{}, wantNil: true},
		{name: "TLS 1.3", cfg: ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"}},
		{name: "default version", cfg: ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}},
		{name: "missing cert file", cfg: ServerConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: keyFile}, wantNil: true, wantErr: true},
		{name: "missing key file", cfg: ServerConfig{Enabled: true, CertFile: certFile, KeyFile: "/nonexistent/key.pem"}, wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadServerTLSConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsFatal(err))
			} else {
				require.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Len(t, got.Certificates, 1)
			assert.Equal(t, parseTLSVersion(tt.cfg.MinVersion), got.MinVersion)
		})
	}
}

func TestLoadClientTLSConfig(t *testing.T) {
	certFile, keyFile, caFile := setupTestFiles(t)
	badCA := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(badCA, []byte("not a certificate"), 0644))

	tests := []struct {
		name      string
		cfg       ClientConfig
		wantNil   bool
		wantErr   bool
		wantCerts int
	}{
		{name: "disabled", cfg: ClientConfig{CAFiles: []string{caFile}}, wantNil: true},
		{name: "system roots only", cfg: ClientConfig{Enabled: true}},
		{name: "additional CA", cfg: ClientConfig{Enabled: true, CAFiles: []string{caFile}, MinVersion: "1.3"}},
		{name: "client certificate", cfg: ClientConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}, wantCerts: 1},
		{name: "missing CA", cfg: ClientConfig{Enabled: true, CAFiles: []string{"/nonexistent/ca.pem"}}, wantNil: true, wantErr: true},
		{name: "invalid CA", cfg: ClientConfig{Enabled: true, CAFiles: []string{badCA}}, wantNil: true, wantErr: true},
		{name: "missing client key", cfg: ClientConfig{Enabled: true, CertFile: certFile, KeyFile: "/nonexistent/key.pem"}, wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadClientTLSConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsFatal(err))
			} else {
				require.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.NotNil(t, got.RootCAs)
			assert.Len(t, got.Certificates, tt.wantCerts)
			assert.False(t, got.InsecureSkipVerify)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, ClientConfig{}.Validate("nats.tls"))
	assert.NoError(t, ClientConfig{Enabled: true, MinVersion: "1.3"}.Validate("nats.tls"))

	err := ClientConfig{Enabled: true, CertFile: "cert.pem"}.Validate("nats.tls")
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "nats.tls.cert_file")

	err = ClientConfig{Enabled: true, MinVersion: "1.1"}.Validate("nats.tls")
	assert.True(t, errors.IsConfig(err))

	assert.NoError(t, ServerConfig{}.Validate("metrics.tls"))
	err = ServerConfig{Enabled: true}.Validate("metrics.tls")
	assert.True(t, errors.IsConfig(err))
}

func TestParseTLSVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.0"))
}

func TestHandshake(t *testing.T) {
	certFile, keyFile, caFile := setupTestFiles(t)

	serverCfg, err := LoadServerTLSConfig(ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	clientCfg, err := LoadClientTLSConfig(ClientConfig{Enabled: true, CAFiles: []string{caFile}})
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("ok"))
	}()

	clientCfg.ServerName = "localhost"
	conn, err := tls.Dial("tcp", ln.Addr().String(), clientCfg)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 2)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf))
}
