package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ideamans/keywrapper/cmd/keywrapper/cmd/server"
	"github.com/ideamans/keywrapper/pkg/config"
	"github.com/ideamans/keywrapper/pkg/credentials"
	sharedconfig "github.com/ideamans/keywrapper/pkg/shared/config"
	"github.com/ideamans/keywrapper/pkg/shared/logging"
)

var checkStrict bool

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and resolve credentials",
	Long: `Validate the configuration file without starting the server.

This command will:
- Load and validate the configuration file (or the defaults if it is missing)
- Report environment variables referenced by the file that are not set
- Resolve gateway_url, dummy_key and real_key and show masked values

Unresolved credentials are reported but only fail the command with --strict,
because the server accepts them and rejects requests until they are set.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "Fail when a credential does not resolve")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	return checkConfig(cmd.Context(), cmd.OutOrStdout(), cfgFile, checkStrict)
}

func checkConfig(ctx context.Context, out io.Writer, path string, strict bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintf(out, "Testing configuration file: %s\n", path)

	cfg, found, err := config.LoadOrDefault(path)
	if err != nil {
		return server.FormatConfigError("configuration", err)
	}
	if found {
		fmt.Fprintln(out, "✓ Configuration file loaded successfully")
		if raw, err := os.ReadFile(path); err == nil {
			if missing := sharedconfig.MissingEnvVars(string(raw), os.LookupEnv); len(missing) > 0 {
				fmt.Fprintf(out, "! Unset environment variables: %s\n", strings.Join(missing, ", "))
			}
		}
	} else {
		fmt.Fprintln(out, "! Configuration file not found, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return server.FormatConfigError("configuration", err)
	}
	fmt.Fprintln(out, "✓ Configuration validation passed")

	// Resolution errors are printed below, so provider logs are discarded
	quiet := logging.NewSimpleLoggerWithWriter("check", logging.LevelFatal, false, io.Discard)
	secrets, err := credentials.NewManager(cfg.Secrets, quiet)
	if err != nil {
		return fmt.Errorf("failed to build secret providers: %w", err)
	}
	defer secrets.Close()

	fmt.Fprintln(out, "\nConfiguration Summary:")
	fmt.Fprintf(out, "  Listen: %s\n", cfg.Server.Addr())
	fmt.Fprintf(out, "  Secret providers: %s\n", strings.Join(secrets.Schemes(), ", "))
	if cfg.Secrets.KVSEnabled() {
		fmt.Fprintf(out, "  Secret KVS: %s (namespace: %s)\n", cfg.Secrets.KVS.Type, cfg.Secrets.KVS.Namespace)
	}

	fmt.Fprintln(out, "\nCredentials:")
	resolver := credentials.NewResolver(cfg.Credentials, secrets, quiet)
	unresolved := 0
	for _, st := range resolver.Inspect(ctx) {
		if st.Resolved {
			fmt.Fprintf(out, "  ✓ %-12s %s (%s)\n", st.Name, st.Masked, st.Ref)
			continue
		}
		unresolved++
		reason := "not set"
		if st.Err != nil {
			reason = st.Err.Error()
		}
		fmt.Fprintf(out, "  ✗ %-12s %s (%s)\n", st.Name, reason, st.Ref)
	}

	if unresolved > 0 {
		if strict {
			return fmt.Errorf("%d credential(s) could not be resolved", unresolved)
		}
		fmt.Fprintf(out, "\n! %d credential(s) unresolved; requests will be rejected until they are set\n", unresolved)
		return nil
	}

	fmt.Fprintln(out, "\n✓ Configuration is valid and ready to use")
	return nil
}
