package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/mcpcore/internal/ssrf"
)

var checkURLCmd = &cobra.Command{
	Use:   "check-url <url>",
	Short: "Test a URL against the SSRF guard",
	Long: `Check-url validates a URL the way the connection manager does before
opening any socket: scheme allowlist, hostname blocklist, and private or
reserved IP ranges, with IP-literal canonicalization.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckURL,
}

func runCheckURL(cmd *cobra.Command, args []string) error {
	guard := ssrf.NewGuard(nil, nil)
	result := guard.ValidateURL(args[0])

	if result.Valid {
		if result.ResolvedIP != "" {
			fmt.Printf("allowed: %s (%s)\n", result.Host, result.ResolvedIP)
		} else {
			fmt.Printf("allowed: %s\n", result.Host)
		}
		return nil
	}

	msg := fmt.Sprintf("blocked: %s", result.Category)
	if result.Reason != "" {
		msg += " (" + result.Reason + ")"
	}
	return fmt.Errorf("%s", msg)
}
