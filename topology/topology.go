package topology

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Host is a remotely addressable cluster machine in user@ip form.
type Host struct {
	// Address is the raw configured address, e.g. "root@10.0.0.1".
	Address string
	User    string
	IP      string
}

func (h Host) String() string {
	return h.Address
}

// MalformedAddressError is returned for addresses that are not of the form
// user@ip. Addresses without a user are rejected rather than treated as a bare
// IP, so a typo never silently logs in as the local user.
type MalformedAddressError struct {
	Address string
	Reason  string
}

func (e *MalformedAddressError) Error() string {
	return fmt.Sprintf("malformed host address %q: %s", e.Address, e.Reason)
}

// ParseHost splits a user@ip address. The IP is everything after the first
// "@".
func ParseHost(address string) (Host, error) {
	address = strings.TrimSpace(address)

	i := strings.Index(address, "@")
	if i < 0 {
		return Host{}, &MalformedAddressError{Address: address, Reason: "missing user@ delimiter"}
	}

	h := Host{
		Address: address,
		User:    address[:i],
		IP:      address[i+1:],
	}
	if h.User == "" {
		return Host{}, &MalformedAddressError{Address: address, Reason: "empty user"}
	}
	if h.IP == "" {
		return Host{}, &MalformedAddressError{Address: address, Reason: "empty ip"}
	}

	return h, nil
}

// Topology is the resolved set of hosts for one run. Nodes may be empty.
type Topology struct {
	Master Host
	Nodes  []Host
}

// Hosts returns the master followed by the nodes in configured order.
func (t Topology) Hosts() []Host {
	return append([]Host{t.Master}, t.Nodes...)
}

// NodeIPs returns the node IPs in configured order.
func (t Topology) NodeIPs() []string {
	ips := make([]string, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		ips = append(ips, n.IP)
	}
	return ips
}

func DetectMaster(address string) (Host, error) {
	if strings.TrimSpace(address) == "" {
		return Host{}, errors.New("master address is not set")
	}

	h, err := ParseHost(address)
	if err != nil {
		return Host{}, errors.Wrap(err, "detecting master")
	}
	return h, nil
}

func DetectNodes(addresses []string) ([]Host, error) {
	nodes := make([]Host, 0, len(addresses))
	for i, addr := range addresses {
		h, err := ParseHost(addr)
		if err != nil {
			return nil, errors.Wrapf(err, "detecting node %d", i)
		}
		nodes = append(nodes, h)
	}
	return nodes, nil
}

// Resolve builds the topology from the configured master and node addresses.
func Resolve(master string, nodes []string) (Topology, error) {
	m, err := DetectMaster(master)
	if err != nil {
		return Topology{}, err
	}

	n, err := DetectNodes(nodes)
	if err != nil {
		return Topology{}, err
	}

	return Topology{Master: m, Nodes: n}, nil
}
