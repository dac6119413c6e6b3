package main

import (
	"fmt"

	"github.com/greymatter-io/sshk/certificates"
	"github.com/greymatter-io/sshk/topology"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// debugCertCmd checks that the API server certificate at --cert-path, fetched
// from the master, covers the SANs make-ca-cert.sh was asked for.
var debugCertCmd = &cli.Command{
	Name:  "debug-cert",
	Usage: "check an API server cert covers the master IP and service names",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "cert-path",
			Usage: "path to cert to verify",
		},
	},
	Action: doDebugCert,
}

func doDebugCert(ctx *cli.Context) error {
	checkCertPath := ctx.String("cert-path")
	if checkCertPath == "" {
		return errors.New("must set --cert-path")
	}

	opts, err := optionsFromContext(ctx)
	if err != nil {
		return err
	}

	master, err := topology.DetectMaster(opts.Master)
	if err != nil {
		return err
	}

	serviceIP, err := opts.FirstServiceIP()
	if err != nil {
		return err
	}

	sans := certificates.SANs(master.IP, serviceIP)
	if err := certificates.VerifySANs(checkCertPath, sans); err != nil {
		return err
	}

	fmt.Fprintf(ctx.App.Writer, "cert %s covers %s\n", checkCertPath, certificates.SANArg(master.IP, serviceIP))
	return nil
}
