// Package tlsutils generates self-signed certificates so that browsers can
// access the microphone when the server is not reached via localhost.
package tlsutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const validity = 30 * 24 * time.Hour

// GenerateSelfSignedTLSCertificate writes a certificate and key for the given
// host names or IPs (default: localhost) into a temporary directory.
// The returned func removes the directory.
func GenerateSelfSignedTLSCertificate(hosts ...string) (certFile, keyFile string, cleanup func(), err error) {
	noop := func() {}

	certPEM, keyPEM, err := generateSelfSignedTLSCertificate(hosts)
	if err != nil {
		return "", "", noop, err
	}

	dir, err := os.MkdirTemp("", "sobub-tls-")
	if err != nil {
		return "", "", noop, fmt.Errorf("create tls dir: %w", err)
	}

	cleanup = func() {
		_ = os.RemoveAll(dir)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")

	err = os.WriteFile(certFile, certPEM, 0o600)
	if err == nil {
		err = os.WriteFile(keyFile, keyPEM, 0o600)
	}
	if err != nil {
		cleanup()
		return "", "", noop, fmt.Errorf("write tls files: %w", err)
	}

	return certFile, keyFile, cleanup, nil
}

func generateSelfSignedTLSCertificate(hosts []string) ([]byte, []byte, error) {
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ECDSA key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial number: %w", err)
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   hosts[0],
			Organization: []string{"SOBUB"},
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}

	privBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal ECDSA private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes})

	return certPEM, keyPEM, nil
}
