package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashwinyue/chat-insight/internal/service/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest batch files directly into the store",
	Long:  `Decode each file as a batch or batch array and run it through the pipeline. Use - to read stdin.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	batches, err := readBatches(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	rt, err := loadRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.Services.Pipeline.Ingest(cmd.Context(), batches)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d namespace(s) failed", report.Failed)
	}
	return nil
}

// readBatches 读取并解析全部文件，任何一个不合法都不写库
func readBatches(stdin io.Reader, paths []string) ([]ingest.Batch, error) {
	var all []ingest.Batch
	for _, path := range paths {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		batches, err := ingest.DecodeBatches(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		all = append(all, batches...)
	}
	return all, nil
}
