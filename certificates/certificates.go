package certificates

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ServiceDNSNames are the in-cluster names of the kubernetes service the API
// server certificate must cover.
var ServiceDNSNames = []string{
	"kubernetes",
	"kubernetes.default",
	"kubernetes.default.svc",
	"kubernetes.default.svc.cluster.local",
}

// SANs lists the subject alternative names of the API server certificate in
// make-ca-cert.sh form: IP:<master>, IP:<service ip>, then DNS:<name>.
func SANs(masterIP string, serviceIP net.IP) []string {
	sans := []string{"IP:" + masterIP, "IP:" + serviceIP.String()}
	for _, name := range ServiceDNSNames {
		sans = append(sans, "DNS:"+name)
	}
	return sans
}

// SANArg is the comma joined SAN argument for make-ca-cert.sh.
func SANArg(masterIP string, serviceIP net.IP) string {
	return strings.Join(SANs(masterIP, serviceIP), ",")
}

type csrKey struct {
	Algo string `json:"algo"`
	Size int    `json:"size"`
}

type csrName struct {
	O  string `json:"O"`
	OU string `json:"OU"`
}

type csr struct {
	CN    string    `json:"CN"`
	Hosts []string  `json:"hosts"`
	Key   csrKey    `json:"key"`
	Names []csrName `json:"names"`
}

// CertJSON is a cfssl style certificate request for the API server. It is
// staged next to make-ca-cert.sh so the installer can sign with cfssl
// instead of easy-rsa when it is available.
func CertJSON(masterIP string, serviceIP net.IP) []byte {
	hosts := []string{masterIP, serviceIP.String()}
	hosts = append(hosts, ServiceDNSNames...)

	b, _ := json.MarshalIndent(csr{
		CN:    "kubernetes",
		Hosts: hosts,
		Key:   csrKey{Algo: "rsa", Size: 2048},
		Names: []csrName{{O: "Kubernetes", OU: "sshk"}},
	}, "", "  ")
	return b
}

// VerifySANs checks that the PEM certificate at certPath is valid for every
// IP and DNS name in sans.
func VerifySANs(certPath string, sans []string) error {
	certBytes, err := os.ReadFile(certPath)
	if err != nil {
		return err
	}

	block, _ := pem.Decode(certBytes)
	if block == nil {
		return errors.Errorf("%s does not contain a PEM certificate", certPath)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return errors.Wrap(err, "could not parse certificate")
	}

	var missing []string
	for _, san := range sans {
		name := san[strings.Index(san, ":")+1:]
		if err := cert.VerifyHostname(name); err != nil {
			missing = append(missing, san)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("certificate %s does not cover %s", certPath, strings.Join(missing, ", "))
	}

	return nil
}
