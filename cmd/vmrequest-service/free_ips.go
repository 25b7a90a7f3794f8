package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dcm-project/vmrequest-service/internal/config"
	"github.com/dcm-project/vmrequest-service/internal/netcenter"
)

var freeIPsOpts struct {
	subnet  string
	records bool
}

func addFreeIPsFlags(fs *pflag.FlagSet) {
	fs.StringVar(&freeIPsOpts.subnet, "subnet", "", "subnet network address (default: ADMIN_SUBNET)")
	fs.BoolVar(&freeIPsOpts.records, "records", false, "print subnet mask and name next to each address")
}

var freeIPsCmd = &cobra.Command{
	Use:   "free-ips",
	Short: "List free IPv4 addresses of a subnet from netcenter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Netcenter.User == "" || cfg.Netcenter.Pass == "" {
			return fmt.Errorf("%w: NETCENTER_USER and NETCENTER_PASS are required", config.ErrConfigurationMissing)
		}

		subnet := freeIPsOpts.subnet
		if subnet == "" {
			subnet = cfg.Admin.Subnet
		}

		client, err := netcenter.NewClient(cfg.Netcenter)
		if err != nil {
			return err
		}

		records, err := client.FreeIPv4Records(cmd.Context(), subnet)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, r := range records {
			if freeIPsOpts.records {
				fmt.Fprintf(out, "%s\t%s\t%s\n", r.IP, r.SubnetAndMask, r.SubnetName)
				continue
			}
			fmt.Fprintln(out, r.IP)
		}
		return nil
	},
}

func init() {
	addFreeIPsFlags(freeIPsCmd.Flags())
}
