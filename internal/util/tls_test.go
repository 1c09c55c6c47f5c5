package util

import (
	"crypto/x509"
	"testing"
	"time"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := GenerateSelfSignedCert("edge.test", "10.0.0.7")
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	if len(cert.Certificate) != 1 {
		t.Fatalf("expected 1 certificate in chain, got %d", len(cert.Certificate))
	}
	leaf := cert.Leaf
	if leaf == nil {
		t.Fatal("expected parsed leaf")
	}

	for _, host := range []string{"localhost", "edge.test", "127.0.0.1", "10.0.0.7"} {
		if err := leaf.VerifyHostname(host); err != nil {
			t.Errorf("VerifyHostname(%q): %v", host, err)
		}
	}
	if err := leaf.VerifyHostname("other.test"); err == nil {
		t.Error("expected hostname mismatch for other.test")
	}

	if !leaf.NotAfter.After(time.Now().Add(300 * 24 * time.Hour)) {
		t.Errorf("certificate expires too soon: %s", leaf.NotAfter)
	}
	if len(leaf.ExtKeyUsage) != 1 || leaf.ExtKeyUsage[0] != x509.ExtKeyUsageServerAuth {
		t.Errorf("unexpected ext key usage: %v", leaf.ExtKeyUsage)
	}
}
