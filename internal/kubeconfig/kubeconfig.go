// Package kubeconfig builds a Kubernetes REST config from an in-memory
// kubeconfig blob (the ticket's kubeconfig payload), inlining any
// file-referenced credentials so the result is portable across
// containers where the original paths don't exist (spec.md §9).
package kubeconfig

import (
	"fmt"
	"os"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// RESTConfig parses raw kubeconfig YAML/JSON bytes into a *rest.Config,
// inlining caFile/certFile/keyFile references first.
func RESTConfig(raw []byte) (*rest.Config, error) {
	apiCfg, err := clientcmd.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("parse kubeconfig: %w", err)
	}

	if err := Normalize(apiCfg); err != nil {
		return nil, fmt.Errorf("normalize kubeconfig: %w", err)
	}

	restCfg, err := clientcmd.NewDefaultClientConfig(*apiCfg, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build rest config: %w", err)
	}
	return restCfg, nil
}

// Normalize inlines file-referenced client certificate, client key, and
// certificate-authority bytes into the config in place, clearing the
// path fields once inlined. It is a no-op for entries that already carry
// embedded bytes or reference no file.
func Normalize(cfg *clientcmdapi.Config) error {
	for name, cluster := range cfg.Clusters {
		if len(cluster.CertificateAuthorityData) == 0 && cluster.CertificateAuthority != "" {
			data, err := os.ReadFile(cluster.CertificateAuthority)
			if err != nil {
				return fmt.Errorf("cluster %q: read certificate-authority: %w", name, err)
			}
			cluster.CertificateAuthorityData = data
			cluster.CertificateAuthority = ""
		}
	}

	for name, auth := range cfg.AuthInfos {
		if len(auth.ClientCertificateData) == 0 && auth.ClientCertificate != "" {
			data, err := os.ReadFile(auth.ClientCertificate)
			if err != nil {
				return fmt.Errorf("user %q: read client-certificate: %w", name, err)
			}
			auth.ClientCertificateData = data
			auth.ClientCertificate = ""
		}
		if len(auth.ClientKeyData) == 0 && auth.ClientKey != "" {
			data, err := os.ReadFile(auth.ClientKey)
			if err != nil {
				return fmt.Errorf("user %q: read client-key: %w", name, err)
			}
			auth.ClientKeyData = data
			auth.ClientKey = ""
		}
	}

	return nil
}
