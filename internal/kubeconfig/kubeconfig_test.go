package kubeconfig

import (
	"os"
	"path/filepath"
	"testing"

	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

func TestNormalizeInlinesFileReferences(t *testing.T) {
	dir := t.TempDir()

	caPath := filepath.Join(dir, "ca.crt")
	certPath := filepath.Join(dir, "client.crt")
	keyPath := filepath.Join(dir, "client.key")

	if err := os.WriteFile(caPath, []byte("ca-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(certPath, []byte("cert-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, []byte("key-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := clientcmdapi.NewConfig()
	cfg.Clusters["test-cluster"] = &clientcmdapi.Cluster{
		Server:               "https://example.invalid",
		CertificateAuthority: caPath,
	}
	cfg.AuthInfos["test-user"] = &clientcmdapi.AuthInfo{
		ClientCertificate: certPath,
		ClientKey:         keyPath,
	}

	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	cluster := cfg.Clusters["test-cluster"]
	if string(cluster.CertificateAuthorityData) != "ca-bytes" {
		t.Errorf("CertificateAuthorityData = %q, want %q", cluster.CertificateAuthorityData, "ca-bytes")
	}
	if cluster.CertificateAuthority != "" {
		t.Errorf("CertificateAuthority path not cleared: %q", cluster.CertificateAuthority)
	}

	user := cfg.AuthInfos["test-user"]
	if string(user.ClientCertificateData) != "cert-bytes" {
		t.Errorf("ClientCertificateData = %q, want %q", user.ClientCertificateData, "cert-bytes")
	}
	if string(user.ClientKeyData) != "key-bytes" {
		t.Errorf("ClientKeyData = %q, want %q", user.ClientKeyData, "key-bytes")
	}
	if user.ClientCertificate != "" || user.ClientKey != "" {
		t.Error("client cert/key paths not cleared")
	}
}

func TestNormalizeNoOpWhenDataAlreadyEmbedded(t *testing.T) {
	cfg := clientcmdapi.NewConfig()
	cfg.Clusters["test-cluster"] = &clientcmdapi.Cluster{
		Server:                   "https://example.invalid",
		CertificateAuthorityData: []byte("already-embedded"),
	}

	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if string(cfg.Clusters["test-cluster"].CertificateAuthorityData) != "already-embedded" {
		t.Error("Normalize overwrote already-embedded CA data")
	}
}

func TestNormalizeMissingFileErrors(t *testing.T) {
	cfg := clientcmdapi.NewConfig()
	cfg.Clusters["test-cluster"] = &clientcmdapi.Cluster{
		Server:               "https://example.invalid",
		CertificateAuthority: "/nonexistent/path/ca.crt",
	}

	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for missing certificate-authority file")
	}
}
