package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/weapp/foxytools/store"
)

var (
	storeCmd = &cobra.Command{
		Use:   "store",
		Short: "Inspect and edit store collections",
	}
	storeListCmd = &cobra.Command{
		Use:   "list [collection]",
		Short: "Print every record of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd, args[0])
			if err != nil {
				return err
			}
			records, err := s.All()
			if err != nil {
				return err
			}
			return printRecords(cmd, records)
		},
	}
	storeWhereCmd = &cobra.Command{
		Use:   "where [collection] [key=value...]",
		Short: "Print the records matching every key=value pair",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, attrs, err := storeAndAttrs(cmd, args)
			if err != nil {
				return err
			}
			records, err := s.Where(attrs)
			if err != nil {
				return err
			}
			return printRecords(cmd, records)
		},
	}
	storeDeleteCmd = &cobra.Command{
		Use:   "delete [collection] [key=value...]",
		Short: "Delete the records matching every key=value pair",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, attrs, err := storeAndAttrs(cmd, args)
			if err != nil {
				return err
			}
			n, err := s.Delete(attrs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d record(s)\n", n)
			return nil
		},
	}
	storeWipeCmd = &cobra.Command{
		Use:   "wipe [collection]",
		Short: "Remove a whole collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd, args[0])
			if err != nil {
				return err
			}
			if err := s.DeleteAll(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wiped %s\n", s.Path())
			return nil
		},
	}
)

func init() {
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeWhereCmd)
	storeCmd.AddCommand(storeDeleteCmd)
	storeCmd.AddCommand(storeWipeCmd)
}

func openStore(cmd *cobra.Command, collection string) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts := []store.Option{store.WithRoot(cfg.StoreRoot)}
	if cfg.Env != "" {
		opts = append(opts, store.WithEnv(cfg.Env))
	}
	return store.New(collection, opts...), nil
}

func storeAndAttrs(cmd *cobra.Command, args []string) (*store.Store, store.Record, error) {
	s, err := openStore(cmd, args[0])
	if err != nil {
		return nil, nil, err
	}
	attrs, err := parsePairs(args[1:])
	if err != nil {
		return nil, nil, err
	}
	return s, store.Record(attrs), nil
}

func printRecords(cmd *cobra.Command, records []store.Record) error {
	out, err := yaml.Marshal(records)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
