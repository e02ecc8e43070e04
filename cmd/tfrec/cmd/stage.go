package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/tfrecord/pkg/config"
	"github.com/ssargent/tfrecord/pkg/storage"
)

// stagedPayload describes a staged payload
type stagedPayload struct {
	ID      string `json:"id"`
	Time    string `json:"time"`
	Size    int    `json:"size"`
	Preview string `json:"preview"`
}

// stageCmd represents the stage command
var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Stage payloads before framing them",
	Long: `Manage the staging area: a local database of payloads that have not been
framed yet. Staged payloads are kept in arrival order and can be exported as a
record stream in one pass.`,
}

var stagePutCmd = &cobra.Command{
	Use:   "put [files...]",
	Short: "Stage files or stdin as payloads",
	Long: `Stage each input as one payload. With no files, or with "-", the payload is
read from stdin. With --lines every input line is staged separately.

Examples:
  tfrec stage put a.json b.json
  tfrec stage put --lines < events.ndjson`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, _ := cmd.Flags().GetBool("lines")
		return withStaging(func(staging storage.Storage) error {
			ids, err := runStagePut(cfg, staging, args, lines, cmd.InOrStdin())
			for _, id := range ids {
				cmd.Println(id.String())
			}
			return err
		})
	},
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staged payloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		return withStaging(func(staging storage.Storage) error {
			payloads, err := runStageList(staging, limit)
			if err != nil {
				return err
			}
			return printStaged(cmd.OutOrStdout(), format, payloads)
		})
	},
}

var stageExportCmd = &cobra.Command{
	Use:   "export <stream>",
	Short: "Write staged payloads as a record stream",
	Long: `Frame every staged payload, oldest first, and write the record stream to a
file, or to stdout with "-". With --clear the staging area is emptied after a
successful export.

Examples:
  tfrec stage export batch.tfrecord --clear
  tfrec stage export - | tfrec verify -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clearAfter, _ := cmd.Flags().GetBool("clear")

		return withStaging(func(staging storage.Storage) error {
			count, err := runStageExport(staging, args[0], clearAfter, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			cmd.PrintErrf("Exported %d payloads\n", count)
			return nil
		})
	},
}

var stageImportCmd = &cobra.Command{
	Use:   "import <stream>",
	Short: "Stage the payloads of a record stream",
	Long: `Decode a record stream, from a file or from stdin with "-", and stage its
payloads. Import stops at the first record that fails to decode; the payloads
before it stay staged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStaging(func(staging storage.Storage) error {
			count, err := runStageImport(cfg, staging, args[0], cmd.InOrStdin())
			cmd.PrintErrf("Imported %d payloads\n", count)
			return err
		})
	},
}

var stageClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every staged payload",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStaging(func(staging storage.Storage) error {
			if err := staging.Clear(); err != nil {
				return err
			}
			cmd.Println("Staging area cleared")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.AddCommand(stagePutCmd, stageListCmd, stageExportCmd, stageImportCmd, stageClearCmd)

	stagePutCmd.Flags().Bool("lines", false, "Stage every input line as its own payload")
	stageListCmd.Flags().Int("limit", 0, "Maximum payloads to list (0 = all)")
	stageExportCmd.Flags().Bool("clear", false, "Empty the staging area after exporting")
}

// withStaging opens the staging area for the duration of fn
func withStaging(fn func(staging storage.Storage) error) error {
	c, err := requireContainer()
	if err != nil {
		return err
	}

	staging, err := c.GetStagingOpener()(cfg.StagingPath())
	if err != nil {
		return errors.Wrap(err, "failed to open staging area")
	}

	fnErr := fn(staging)
	closeErr := staging.Close()
	return errors.CombineErrors(fnErr, closeErr)
}

func runStagePut(c *config.Config, staging storage.Storage, inputs []string, lines bool, stdin io.Reader) ([]ksuid.KSUID, error) {
	if len(inputs) == 0 {
		inputs = []string{stdioPath}
	}

	ids := make([]ksuid.KSUID, 0, len(inputs))
	stage := func(payload []byte) error {
		if uint64(len(payload)) > c.Codec.MaxRecordSize {
			return errors.Newf("payload of %d bytes exceeds max_record_size %d", len(payload), c.Codec.MaxRecordSize)
		}
		id, err := staging.Create(payload)
		if err != nil {
			return err
		}
		ids = append(ids, *id)
		return nil
	}

	for _, input := range inputs {
		var src io.Reader = stdin
		if input != stdioPath {
			file, err := os.Open(input)
			if err != nil {
				return ids, err
			}
			defer file.Close()
			src = file
		}

		if !lines {
			payload, err := io.ReadAll(src)
			if err != nil {
				return ids, err
			}
			if err := stage(payload); err != nil {
				return ids, err
			}
			continue
		}

		scanner := bufio.NewScanner(src)
		scanner.Buffer(make([]byte, 0, 64*1024), int(c.Codec.MaxRecordSize)+1)
		for scanner.Scan() {
			payload := append([]byte(nil), scanner.Bytes()...)
			if err := stage(payload); err != nil {
				return ids, err
			}
		}
		if err := scanner.Err(); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

func runStageList(staging storage.Storage, limit int) ([]stagedPayload, error) {
	ids, err := staging.List(limit)
	if err != nil {
		return nil, err
	}

	payloads := make([]stagedPayload, 0, len(ids))
	for i := range ids {
		data, err := staging.Read(&ids[i])
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, stagedPayload{
			ID:      ids[i].String(),
			Time:    ids[i].Time().UTC().Format("2006-01-02T15:04:05Z"),
			Size:    len(data),
			Preview: preview(data),
		})
	}
	return payloads, nil
}

func runStageExport(staging storage.Storage, path string, clearAfter bool, stdout io.Writer) (int, error) {
	var out io.Writer = stdout
	var file *os.File
	if path != stdioPath {
		var err error
		file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return 0, errors.Wrap(err, "failed to create stream file")
		}
		out = file
	}

	count, err := staging.Export(out)
	if file != nil {
		if syncErr := file.Sync(); err == nil {
			err = syncErr
		}
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return count, err
	}

	if clearAfter {
		if err := staging.Clear(); err != nil {
			return count, errors.Wrap(err, "exported but failed to clear staging area")
		}
	}
	return count, nil
}

func runStageImport(c *config.Config, staging storage.Storage, path string, stdin io.Reader) (int, error) {
	var src io.Reader = stdin
	if path != stdioPath {
		file, err := os.Open(path)
		if err != nil {
			return 0, errors.Wrap(err, "failed to open stream")
		}
		defer file.Close()
		src = file
	}
	return staging.Import(src, c.CodecOptions()...)
}

func printStaged(w io.Writer, format string, payloads []stagedPayload) error {
	if format == formatJSON {
		return writeJSON(w, payloads)
	}

	if len(payloads) == 0 {
		_, err := fmt.Fprintln(w, "No staged payloads")
		return err
	}

	table := newTable(w)
	fmt.Fprintln(table, "ID\tSTAGED\tSIZE\tPAYLOAD")
	for _, p := range payloads {
		fmt.Fprintf(table, "%s\t%s\t%d\t%s\n", p.ID, p.Time, p.Size, p.Preview)
	}
	return table.Flush()
}
