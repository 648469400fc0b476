package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/certify"
)

var (
	certifySuite  string
	certifyFormat string
)

func init() {
	rootCmd.AddCommand(certifyCmd)
	certifyCmd.Flags().StringVar(&certifySuite, "suite", "core", "Certification suite to run")
	certifyCmd.Flags().StringVarP(&certifyFormat, "format", "f", "text", "Output format (text|json)")
}

var certifyCmd = &cobra.Command{
	Use:   "certify",
	Short: "Run the end-to-end certification suite",
	Long: "Runs a curated set of pipeline scenarios against a throwaway ledger\n" +
		"and reports pass/fail per category. Exit code 0 if all cases pass,\n" +
		"1 if any fail.\n\n" +
		"Available suites: " + fmt.Sprintf("%v", certify.ListSuites()),
	RunE: runCertify,
}

func runCertify(cmd *cobra.Command, args []string) error {
	suite, err := certify.LoadSuite(certifySuite)
	if err != nil {
		return err
	}

	result, err := certify.Run(context.Background(), suite)
	if err != nil {
		return err
	}

	switch certifyFormat {
	case "json":
		out, err := certify.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(certify.FormatText(result))
	}

	if result.Failed > 0 {
		os.Exit(1)
	}

	return nil
}
