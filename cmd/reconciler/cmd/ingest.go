package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"payment-reconciliation-service/cmd/reconciler/config"
	"payment-reconciliation-service/internal/ingest"
	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/internal/store"
	"payment-reconciliation-service/pkg/errors"
	"payment-reconciliation-service/pkg/logger"
)

var (
	ingestFile      string
	ingestSource    string
	ingestFormat    string
	webhookProvider string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a statement file or webhook payload into the store",
	Long: `Ingest parses a bank statement or processor export (CSV) or a single
webhook payload (JSON) and writes canonical transactions to the database.

The file format is auto-detected unless --format names one explicitly.

Examples:
  reconciler ingest --file gtbank_feb.csv --source bank
  reconciler ingest --file export.csv --source paystack --format Paystack
  reconciler ingest --file payload.json --source paystack --webhook paystack`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "path to the input file (required)")
	ingestCmd.Flags().StringVarP(&ingestSource, "source", "s", "", "source label for the ingested transactions (required)")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "force a specific format instead of auto-detection")
	ingestCmd.Flags().StringVar(&webhookProvider, "webhook", "", "treat the file as one webhook payload from this provider")

	ingestCmd.MarkFlagRequired("file")
	ingestCmd.MarkFlagRequired("source")

	viper.BindPFlag("ingest.format", ingestCmd.Flags().Lookup("format"))
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("cli")

	st, err := store.NewSQLiteStore(viper.GetString("db"), nil)
	if err != nil {
		return err
	}
	defer st.Close()

	f, err := os.Open(ingestFile)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileError(errors.CodeFileNotFound, ingestFile, err)
		}
		return errors.FileError(errors.CodeFilePermission, ingestFile, err)
	}
	defer f.Close()

	var txs []*models.Transaction
	if webhookProvider != "" {
		payload, err := os.ReadFile(ingestFile)
		if err != nil {
			return errors.FileError(errors.CodeFileCorrupted, ingestFile, err)
		}
		parsed, err := ingest.NewWebhookNormalizer(nil).Normalize(webhookProvider, payload)
		if err != nil {
			return err
		}
		txs = ingest.Canonicalize([]*models.ParsedTransaction{parsed}, ingestSource)
	} else {
		parser := ingest.NewParser(config.FormatDescriptor(ingestFormat), nil)
		result, err := parser.Parse(f)
		if err != nil {
			return err
		}
		for _, rowErr := range result.Stats.Errors {
			log.Warnf("skipped: %v", rowErr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Detected format: %s\n", result.Detection.Descriptor.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "Parsed: %s (success rate %.1f%%)\n",
			result.Stats, result.Stats.SuccessRate()*100)
		txs = ingest.Canonicalize(result.Transactions, ingestSource)
	}

	if err := st.SaveBatch(txs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d transaction(s) under source %q\n", len(txs), ingestSource)
	return nil
}
