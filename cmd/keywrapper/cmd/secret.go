package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ideamans/keywrapper/pkg/config"
	sharedconfig "github.com/ideamans/keywrapper/pkg/shared/config"
	"github.com/ideamans/keywrapper/pkg/shared/kvs"
)

// ErrSecretStoreNotConfigured is returned when secrets.kvs is not set
var ErrSecretStoreNotConfigured = errors.New("secrets.kvs is not configured")

var secretReveal bool

// secretCmd groups the commands that manage kvs:// credentials
var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage credentials in the KVS secret store",
	Long: `Manage credentials kept in the KVS store configured under secrets.kvs.

A value stored under KEY is referenced from the configuration as kvs://KEY,
for example:

  credentials:
    real_key: kvs://openai/real

A LevelDB store is locked by a running server; stop it or use Redis to
manage secrets while serving.`,
}

var secretPutCmd = &cobra.Command{
	Use:   "put KEY [VALUE]",
	Short: "Store a credential (reads VALUE from stdin when omitted)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 2 {
			value = args[1]
		} else {
			v, err := readSecretValue(cmd.InOrStdin())
			if err != nil {
				return err
			}
			value = v
		}
		if value == "" {
			return fmt.Errorf("refusing to store an empty value for %s", args[0])
		}

		return withSecretStore(func(store kvs.Store) error {
			if err := store.Set(commandContext(cmd), args[0], []byte(value), 0); err != nil {
				return fmt.Errorf("failed to store %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored %s (reference: kvs://%s)\n", args[0], args[0])
			return nil
		})
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Show a credential (masked unless --reveal)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSecretStore(func(store kvs.Store) error {
			val, err := store.Get(commandContext(cmd), args[0])
			if errors.Is(err, kvs.ErrNotFound) {
				return fmt.Errorf("secret %s not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			value := string(val)
			if !secretReveal {
				value = sharedconfig.MaskSecret(value)
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		})
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Remove a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSecretStore(func(store kvs.Store) error {
			if err := store.Delete(commandContext(cmd), args[0]); err != nil {
				return fmt.Errorf("failed to delete %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
			return nil
		})
	},
}

var secretListCmd = &cobra.Command{
	Use:   "list [PREFIX]",
	Short: "List stored credential keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		return withSecretStore(func(store kvs.Store) error {
			keys, err := store.List(commandContext(cmd), prefix)
			if err != nil {
				return fmt.Errorf("failed to list secrets: %w", err)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		})
	},
}

func init() {
	secretGetCmd.Flags().BoolVar(&secretReveal, "reveal", false, "Print the value unmasked")

	secretCmd.AddCommand(secretPutCmd, secretGetCmd, secretDeleteCmd, secretListCmd)
	rootCmd.AddCommand(secretCmd)
}

// withSecretStore opens the KVS store from the configuration file for the
// duration of fn
func withSecretStore(fn func(kvs.Store) error) error {
	cfg, _, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return err
	}
	if !cfg.Secrets.KVSEnabled() {
		return fmt.Errorf("%w in %s", ErrSecretStoreNotConfigured, cfgFile)
	}
	if err := cfg.Secrets.KVS.Validate(); err != nil {
		return err
	}
	if cfg.Secrets.KVS.Type == "memory" {
		return fmt.Errorf("secrets.kvs.type is memory, which does not outlive this command; use leveldb or redis")
	}

	store, err := kvs.New(cfg.Secrets.KVS)
	if err != nil {
		return fmt.Errorf("failed to open secret store: %w", err)
	}
	defer store.Close()

	return fn(store)
}

// readSecretValue reads the first line of r without the line ending
func readSecretValue(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
