package certgen

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func parseCert(t *testing.T, certPEM []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("invalid certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func newCA(t *testing.T) (*x509.Certificate, any) {
	t.Helper()
	ca, err := GenerateCA("Test CA")
	if err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	cert, key, err := ParseCA(ca.CertPEM, ca.KeyPEM)
	if err != nil {
		t.Fatalf("ParseCA: %v", err)
	}
	return cert, key
}

func TestGenerateCA(t *testing.T) {
	caCert, _ := newCA(t)

	if !caCert.IsCA || !caCert.BasicConstraintsValid {
		t.Error("CA certificate should have IsCA and BasicConstraintsValid")
	}
	wantKU := x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	if caCert.KeyUsage&wantKU != wantKU {
		t.Errorf("CA KeyUsage = %v; want bits %v", caCert.KeyUsage, wantKU)
	}
	if dur := caCert.NotAfter.Sub(caCert.NotBefore); dur < 9*365*24*time.Hour {
		t.Errorf("CA validity too short: %v", dur)
	}
}

func TestGenerateServerCertificate(t *testing.T) {
	caCert, caKey := newCA(t)
	b, err := GenerateServerCertificate([]string{"localhost", "127.0.0.1"}, caCert, caKey)
	if err != nil {
		t.Fatalf("GenerateServerCertificate: %v", err)
	}
	cert := parseCert(t, b.CertPEM)

	if err := cert.CheckSignatureFrom(caCert); err != nil {
		t.Errorf("certificate not signed by CA: %v", err)
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "localhost" {
		t.Errorf("DNSNames = %v; want [localhost]", cert.DNSNames)
	}
	if len(cert.IPAddresses) != 1 || cert.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IPAddresses = %v; want [127.0.0.1]", cert.IPAddresses)
	}
	if len(cert.ExtKeyUsage) != 1 || cert.ExtKeyUsage[0] != x509.ExtKeyUsageServerAuth {
		t.Errorf("ExtKeyUsage = %v; want server auth", cert.ExtKeyUsage)
	}

	if _, err := GenerateServerCertificate(nil, caCert, caKey); err == nil {
		t.Error("expected error for no hosts")
	}
}

func TestGenerateBridgeCertificate(t *testing.T) {
	caCert, caKey := newCA(t)
	b, err := GenerateBridgeCertificate("browser-bridge", caCert, caKey)
	if err != nil {
		t.Fatalf("GenerateBridgeCertificate: %v", err)
	}
	cert := parseCert(t, b.CertPEM)
	if cert.Subject.CommonName != "browser-bridge" {
		t.Errorf("CommonName = %q; want browser-bridge", cert.Subject.CommonName)
	}
	if len(cert.ExtKeyUsage) != 1 || cert.ExtKeyUsage[0] != x509.ExtKeyUsageClientAuth {
		t.Errorf("ExtKeyUsage = %v; want client auth", cert.ExtKeyUsage)
	}
	if _, err := tls.X509KeyPair(b.CertPEM, b.KeyPEM); err != nil {
		t.Errorf("cert and key do not form a pair: %v", err)
	}

	if _, err := GenerateBridgeCertificate("", caCert, caKey); err == nil {
		t.Error("expected error for empty common name")
	}
}

func TestLoadCACredentials_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := LoadCACredentials(filepath.Join(dir, "none.crt"), filepath.Join(dir, "none.key")); err == nil {
		t.Error("expected error for missing files")
	}

	badCert := filepath.Join(dir, "bad.crt")
	badKey := filepath.Join(dir, "bad.key")
	_ = os.WriteFile(badCert, []byte("not pem"), 0o600)
	_ = os.WriteFile(badKey, []byte("not pem"), 0o600)
	_, _, err := LoadCACredentials(badCert, badKey)
	if err == nil || !strings.Contains(err.Error(), "invalid CA cert PEM") {
		t.Errorf("err = %v; want invalid CA cert PEM", err)
	}

	ca, _ := GenerateCA("Test CA")
	_, _, err = ParseCA(ca.CertPEM, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1}}))
	if err == nil || !strings.Contains(err.Error(), "unsupported key type") {
		t.Errorf("err = %v; want unsupported key type", err)
	}
}

func TestWriteBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	if err := WriteBundle(dir, []string{"localhost"}, []string{"browser-bridge"}); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	for _, name := range []string{CACertFile, CAKeyFile, ServerCertFile, ServerKeyFile, "browser-bridge.crt", "browser-bridge.key"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	caBefore, _ := os.ReadFile(filepath.Join(dir, CACertFile))

	// A second run reuses the CA so existing bridge certificates stay valid.
	if err := WriteBundle(dir, []string{"localhost"}, []string{"cli"}); err != nil {
		t.Fatalf("WriteBundle again: %v", err)
	}
	caAfter, _ := os.ReadFile(filepath.Join(dir, CACertFile))
	if string(caBefore) != string(caAfter) {
		t.Error("CA was regenerated")
	}
	caCert := parseCert(t, caAfter)
	bridgePEM, _ := os.ReadFile(filepath.Join(dir, "browser-bridge.crt"))
	if err := parseCert(t, bridgePEM).CheckSignatureFrom(caCert); err != nil {
		t.Errorf("bridge certificate no longer verifies: %v", err)
	}
}
