package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datacite-api/internal/datacite"
	"datacite-api/internal/domain"
	"datacite-api/internal/logger"
)

// doiCmd talks to DataCite directly with the configured credentials. It does
// not go through the API server or the authorization gate.
func (c *cli) doiCmd() *cobra.Command {
	doi := &cobra.Command{Use: "doi", Short: "Manage DOIs on DataCite directly (operator tooling)"}
	doi.AddCommand(c.doiListCmd())
	doi.AddCommand(c.doiGetCmd())
	doi.AddCommand(c.doiPutCmd())
	doi.AddCommand(c.doiAddCmd())
	doi.AddCommand(c.doiDeleteCmd())
	doi.AddCommand(c.doiStateCmd())
	return doi
}

func (c *cli) withClient(cmd *cobra.Command, fn func(*datacite.Client) (any, error)) error {
	cfg, err := c.loadDataCiteConfig()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if level == "" {
		level = "error"
	}
	log, err := logger.New(cfg.Development(), level)
	if err != nil {
		return err
	}
	defer log.Sync()
	client, err := newDataCiteClient(cfg, log.With(zap.String("command", cmd.CommandPath())), nil)
	if err != nil {
		return err
	}
	out, err := fn(client)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return render(cmd.OutOrStdout(), c.v.GetString("output"), out)
}

func (c *cli) doiListCmd() *cobra.Command {
	var pageSize, pageNum int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List DOIs under the configured prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd, func(client *datacite.Client) (any, error) {
				return client.ListDOIs(cmd.Context(), pageSize, pageNum)
			})
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", domain.DefaultPageSize, "records per page (1-1000)")
	cmd.Flags().IntVar(&pageNum, "page-num", domain.DefaultPageNum, "page number")
	return cmd
}

func (c *cli) doiGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <doi>",
		Short: "Show a DOI record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd, func(client *datacite.Client) (any, error) {
				return client.GetDOI(cmd.Context(), args[0])
			})
		},
	}
}

func (c *cli) doiPutCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "put <doi>",
		Short: "Create or replace DOI metadata (never changes state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := readMetadata(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return c.withClient(cmd, func(client *datacite.Client) (any, error) {
				return client.UpdateDOI(cmd.Context(), args[0], md)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "metadata JSON file, - for stdin")
	return cmd
}

func (c *cli) doiAddCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add <doi>",
		Short: "Create a draft DOI, failing if it already exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := readMetadata(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return c.withClient(cmd, func(client *datacite.Client) (any, error) {
				return client.AddDOI(cmd.Context(), args[0], md)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "metadata JSON file, - for stdin")
	return cmd
}

func (c *cli) doiDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doi>",
		Short: "Delete a draft DOI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd, func(client *datacite.Client) (any, error) {
				if err := client.DeleteDOI(cmd.Context(), args[0]); err != nil {
					return nil, err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil, nil
			})
		},
	}
}

func (c *cli) doiStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <doi> <register|publish|hide>",
		Short: "Register, publish or hide a DOI",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := domain.ParseEvent(args[1])
			if err != nil {
				return err
			}
			return c.withClient(cmd, func(client *datacite.Client) (any, error) {
				return client.ChangeDOIState(cmd.Context(), args[0], event)
			})
		},
	}
}

func readMetadata(stdin io.Reader, file string) (domain.Metadata, error) {
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return domain.ParseMetadata(data)
}
