// Command generate-certificate is a standalone CA/client-certificate
// helper for exercising SecurityProfile 2 (BasicAuth over TLS) locally:
// that profile needs a CA and a certificate signed by it to dial a
// central system over wss:// without a real operator PKI.
package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"flag"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func main() {
	var (
		genCA      bool
		genClient  bool
		signCSR    bool
		csrPath    string
		outDir     string
		commonName string
		validYears int
	)

	flag.BoolVar(&genCA, "ca", false, "generate a CA keypair")
	flag.BoolVar(&genClient, "client", false, "generate a client certificate signed by an existing CA")
	flag.BoolVar(&signCSR, "sign", false, "sign a CSR with an existing CA")
	flag.StringVar(&csrPath, "csr", "", "CSR file to sign (with -sign)")
	flag.StringVar(&outDir, "out", ".", "directory to read/write ca.pem, ca.key and certificate files")
	flag.StringVar(&commonName, "cn", "chargepoint", "certificate common name, e.g. the charge point id")
	flag.IntVar(&validYears, "years", 10, "certificate validity in years")
	flag.Parse()

	start := time.Now()
	subject := subjectFor(commonName)

	switch {
	case genCA:
		caPEM, keyPEM, err := newCA(subject, validYears)
		if err != nil {
			log.WithError(err).Fatal("failed to generate CA")
		}
		mustWrite(filepath.Join(outDir, "ca.pem"), caPEM)
		mustWrite(filepath.Join(outDir, "ca.key"), keyPEM)

	case genClient:
		caCert, caKey := mustReadCA(outDir)
		certPEM, keyPEM, err := newClientCertificate(subject, caCert, caKey, validYears)
		if err != nil {
			log.WithError(err).Fatal("failed to generate client certificate")
		}
		mustWrite(filepath.Join(outDir, commonName+".pem"), certPEM)
		mustWrite(filepath.Join(outDir, commonName+".key"), keyPEM)

	case signCSR:
		if csrPath == "" {
			flag.Usage()
			log.Fatal("-csr is required with -sign")
		}
		caCert, caKey := mustReadCA(outDir)
		csrBytes, err := os.ReadFile(csrPath)
		if err != nil {
			log.WithError(err).Fatal("failed to read CSR file")
		}
		signedPEM, err := signCertificateRequest(caCert, caKey, csrBytes)
		if err != nil {
			log.WithError(err).Fatal("failed to sign CSR")
		}
		mustWrite(filepath.Join(outDir, commonName+"-signed.pem"), signedPEM)

	default:
		flag.Usage()
		os.Exit(1)
	}

	log.WithField("elapsed", time.Since(start)).Info("generate-certificate done")
}

func subjectFor(commonName string) pkix.Name {
	return pkix.Name{
		SerialNumber:  "04a970ec72639e056482",
		CommonName:    commonName,
		Organization:  []string{"OCPP16CP Dev PKI"},
		Country:       []string{"EG"},
		Province:      []string{"Cairo"},
		Locality:      []string{"Cairo"},
		StreetAddress: []string{"Nasr City"},
		PostalCode:    []string{"11765"},
	}
}

func randomSerial() (*big.Int, error) {
	return rand.Int(rand.Reader, big.NewInt(1000000000000000000))
}

// newCA generates a self-signed CA certificate and its RSA private key,
// both PEM-encoded.
func newCA(subject pkix.Name, validYears int) (certPEM, keyPEM *bytes.Buffer, err error) {
	serial, err := randomSerial()
	if err != nil {
		return nil, nil, err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(validYears, 0, 0),
		IsCA:                  true,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}

	key, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		return nil, nil, err
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}

	return pemEncode("CERTIFICATE", der), pemEncodeKey(key), nil
}

// newClientCertificate generates an RSA keypair and a certificate for
// subject signed by caCert/caKey.
func newClientCertificate(subject pkix.Name, caCert *x509.Certificate, caKey *rsa.PrivateKey, validYears int) (certPEM, keyPEM *bytes.Buffer, err error) {
	serial, err := randomSerial()
	if err != nil {
		return nil, nil, err
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      subject,
		DNSNames:     []string{subject.CommonName},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(validYears, 0, 0),
		SubjectKeyId: []byte{1, 2, 3, 4, 6},
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	key, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		return nil, nil, err
	}
	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, err
	}

	return pemEncode("CERTIFICATE", der), pemEncodeKey(key), nil
}

// signCertificateRequest signs an externally-generated CSR with the CA,
// producing a 24-hour certificate (short-lived, since a CSR usually
// belongs to a client the CA operator doesn't otherwise vouch for).
func signCertificateRequest(caCert *x509.Certificate, caKey *rsa.PrivateKey, rawCSR []byte) (*bytes.Buffer, error) {
	block, _ := pem.Decode(rawCSR)
	if block == nil {
		return nil, errors.New("generate-certificate: failed to parse CSR PEM")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, err
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		Signature:          csr.Signature,
		SignatureAlgorithm: csr.SignatureAlgorithm,
		PublicKeyAlgorithm: csr.PublicKeyAlgorithm,
		PublicKey:          csr.PublicKey,
		Subject:            csr.Subject,
		SerialNumber:       big.NewInt(2),
		Issuer:             caCert.Subject,
		NotBefore:          time.Now(),
		NotAfter:           time.Now().Add(24 * time.Hour),
		KeyUsage:           x509.KeyUsageDigitalSignature,
		ExtKeyUsage:        []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, caCert, csr.PublicKey, caKey)
	if err != nil {
		return nil, err
	}
	return pemEncode("CERTIFICATE", der), nil
}

func mustReadCA(dir string) (*x509.Certificate, *rsa.PrivateKey) {
	certPEM, err := os.ReadFile(filepath.Join(dir, "ca.pem"))
	if err != nil {
		log.WithError(err).Fatal("failed to read ca.pem (run with -ca first)")
	}
	keyPEM, err := os.ReadFile(filepath.Join(dir, "ca.key"))
	if err != nil {
		log.WithError(err).Fatal("failed to read ca.key (run with -ca first)")
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		log.Fatal("ca.pem is not valid PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		log.WithError(err).Fatal("failed to parse ca.pem")
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		log.Fatal("ca.key is not valid PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		log.WithError(err).Fatal("failed to parse ca.key")
	}

	return cert, key
}

func pemEncode(blockType string, der []byte) *bytes.Buffer {
	buf := new(bytes.Buffer)
	pem.Encode(buf, &pem.Block{Type: blockType, Bytes: der})
	return buf
}

func pemEncodeKey(key *rsa.PrivateKey) *bytes.Buffer {
	return pemEncode("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
}

func mustWrite(path string, data *bytes.Buffer) {
	if err := os.WriteFile(path, data.Bytes(), 0o600); err != nil {
		log.WithError(err).WithField("path", path).Fatal("failed to write file")
	}
	log.WithField("path", path).Info("wrote file")
}
