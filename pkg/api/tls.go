package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"time"

	"github.com/scionproto/scion/pkg/private/serrors"
)

// SelfSignedCertificate creates an ed25519 TLS certificate for commonName
// valid for one year. hosts are added as DNS names or IP addresses.
func SelfSignedCertificate(commonName string, hosts ...string) (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, serrors.Wrap("generating TLS key", err)
	}
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, serrors.Wrap("generating serial number", err)
	}

	subject := pkix.Name{
		Organization: []string{"trustchain"},
		CommonName:   commonName,
	}
	tpl := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               subject,
		Issuer:                subject,
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tpl.IPAddresses = append(tpl.IPAddresses, ip)
		} else {
			tpl.DNSNames = append(tpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, pub, priv)
	if err != nil {
		return tls.Certificate{}, serrors.Wrap("creating TLS certificate", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, serrors.Wrap("parsing TLS certificate", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}, nil
}

// ServerTLSConfig loads the key pair from certFile and keyFile, or creates a
// self-signed certificate for commonName when both are empty.
func ServerTLSConfig(certFile, keyFile, commonName string) (*tls.Config, error) {
	var c tls.Certificate
	var err error
	if certFile == "" && keyFile == "" {
		c, err = SelfSignedCertificate(commonName, "localhost", "127.0.0.1")
	} else {
		c, err = tls.LoadX509KeyPair(certFile, keyFile)
	}
	if err != nil {
		return nil, serrors.Wrap("loading TLS certificate", err, "cert", certFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{c},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
