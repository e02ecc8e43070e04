package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

const (
	formatTable = "table"
	formatJSON  = "json"

	previewLimit = 32
)

// outputFormat returns the --format flag value after checking it
func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "", formatTable:
		return formatTable, nil
	case formatJSON:
		return formatJSON, nil
	default:
		return "", errors.Newf("unknown output format %q (want table or json)", format)
	}
}

// writeJSON writes v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable returns a tabwriter laid out like the rest of the command output
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// preview renders the start of a payload: quoted when it is printable text,
// hex otherwise
func preview(payload []byte) string {
	if len(payload) == 0 {
		return `""`
	}

	head := payload
	if len(head) > previewLimit {
		head = head[:previewLimit]
	}

	suffix := ""
	if len(payload) > previewLimit {
		suffix = "..."
	}

	if utf8.Valid(head) && isPrintable(string(head)) {
		return strconv.Quote(string(head)) + suffix
	}
	return "0x" + hex.EncodeToString(head) + suffix
}

func isPrintable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// humanBytes formats n with a binary unit
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
