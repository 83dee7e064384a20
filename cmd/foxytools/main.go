// Command foxytools fetches URLs through a foxytools client and inspects
// the store collections it writes.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weapp/foxytools"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "foxytools",
		Short: "rate-limited, cached HTTP fetching",
		Long: fmt.Sprintf(`foxytools (v%s)

Fetch URLs through a rate limiter, an on-disk response cache and a
middleware pipeline, and inspect the store collections it writes.`, foxytools.Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of foxytools",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(foxytools.GetVersion())
		},
	}
)

func init() {
	flags := RootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML, JSON or TOML config file")
	flags.String("url", "", "Base URL paths are joined to")
	flags.String("store-root", "", "Directory holding the store collections")
	flags.String("env", "", "Environment suffix for store files (defaults to $FOXY_ENV)")
	flags.String("rate-limit", "", "Minimum interval between requests, e.g. 1s")
	flags.Bool("cache", false, "Cache responses unless a call opts out")
	flags.Bool("debug", false, "Log requests, cache decisions and rate limiting to stderr")

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(fetchCmd)
	RootCmd.AddCommand(storeCmd)
}

// loadConfig reads the config file, FOXY_* variables and command flags,
// in increasing order of precedence.
func loadConfig(cmd *cobra.Command) (foxytools.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	v, err := foxytools.ConfigViper(path)
	if err != nil {
		return foxytools.Config{}, err
	}
	if err := bindFlags(v, cmd); err != nil {
		return foxytools.Config{}, err
	}
	return foxytools.ConfigFromViper(v)
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for _, name := range []string{"url", "store-root", "env", "rate-limit", "cache"} {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flag); err != nil {
			return err
		}
	}
	return nil
}

func newClient(cmd *cobra.Command) (*foxytools.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	opts := []foxytools.Option{foxytools.WithConfig(cfg)}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		opts = append(opts, foxytools.WithSimpleLogger())
	}
	return foxytools.New(opts...)
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
