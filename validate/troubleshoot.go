package validate

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/greymatter-io/sshk/remote"
	"github.com/greymatter-io/sshk/topology"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	MasterDaemons = []string{"kube-apiserver", "kube-controller-manager", "kube-scheduler"}
	NodeDaemons   = []string{"kube-proxy", "kubelet", "docker", "flannel"}
)

type DaemonStatus struct {
	Name   string `yaml:"process"`
	Active bool   `yaml:"active"`
}

func (d DaemonStatus) Status() string {
	if d.Active {
		return "active"
	}
	return "inactive"
}

// Report is the liveness result for one host, one row per expected daemon.
type Report struct {
	Host    string         `yaml:"host"`
	Role    string         `yaml:"role"`
	Daemons []DaemonStatus `yaml:"daemons"`
}

// Troubleshooter checks daemon liveness with systemctl. It never fails: a
// check that errors for any reason, including an unreachable host, reports
// the daemon inactive.
type Troubleshooter struct {
	Channel remote.Channel
	Log     *logrus.Entry
}

func (t *Troubleshooter) Troubleshoot(ctx context.Context, host topology.Host, role string, daemons []string) Report {
	report := Report{Host: host.IP, Role: role}
	for _, d := range daemons {
		cmd := remote.NewCommand(host, "sudo systemctl is-active "+remote.Quote(d))
		err := t.Channel.Run(ctx, cmd)
		if err != nil {
			t.logger().WithFields(logrus.Fields{"host": host.String(), "daemon": d}).Debug(err)
		}
		report.Daemons = append(report.Daemons, DaemonStatus{Name: d, Active: err == nil})
	}
	return report
}

// TroubleshootAll checks the master, then every node in order.
func (t *Troubleshooter) TroubleshootAll(ctx context.Context, topo topology.Topology) []Report {
	var reports []Report
	for i, h := range topo.Hosts() {
		if i == 0 {
			reports = append(reports, t.Troubleshoot(ctx, h, "master", MasterDaemons))
			continue
		}
		reports = append(reports, t.Troubleshoot(ctx, h, "node", NodeDaemons))
	}
	return reports
}

func (t *Troubleshooter) logger() *logrus.Entry {
	if t.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return t.Log
}

// Render writes an aligned PROCESS/STATUS table headed by the host.
func (r Report) Render(w io.Writer) error {
	fmt.Fprintf(w, "%s (%s)\n", r.Host, r.Role)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "PROCESS\tSTATUS")
	for _, d := range r.Daemons {
		status := color.GreenString(d.Status())
		if !d.Active {
			status = color.RedString(d.Status())
		}
		fmt.Fprintf(tw, "%s\t%s\n", d.Name, status)
	}
	return tw.Flush()
}

// RenderReports writes reports as tables or, with format "yaml", as a YAML
// list.
func RenderReports(w io.Writer, reports []Report, format string) error {
	switch format {
	case "", "table":
		for i, r := range reports {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if err := r.Render(w); err != nil {
				return err
			}
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(reports)
	}
	return errors.Errorf("unknown output format %q", format)
}
