package inspect

import (
	"bufio"
	"fmt"
	"github.com/ValentinKolb/snapKV/cmd/util"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/common"
	"github.com/ValentinKolb/snapKV/lib/db/engines/vchain"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"os"
	"strings"
	"time"
)

var (
	log        = logger.GetLogger(common.LoggerCLI)
	InspectCmd = &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the content of a saved snapshot file",
		Long: `Load a snapshot file written by a vchain database (e.g. the persistence file of lstore)
and print every key with its version chain, newest version first.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "gen"
	InspectCmd.Flags().Int64(key, 0, util.WrapString("Only print the value visible at this generation (0 = print all versions)"))

	key = "prefix"
	InspectCmd.Flags().String(key, "", util.WrapString("Only print keys with this prefix"))

	key = "metrics"
	InspectCmd.Flags().Bool(key, false, util.WrapString("Print the metrics of the loaded database in Prometheus text format"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func run(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	// collection would change what is printed
	opts := vchain.DefaultOptions()
	opts.GCInterval = time.Hour

	database := vchain.NewVChainDB(opts)
	defer database.Close()

	start := time.Now()
	if err := database.Load(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to load %s: %w", args[0], err)
	}
	log.Debugf("Loaded %s in %s", args[0], time.Since(start))

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	Print(out, database, viper.GetString("prefix"), viper.GetInt64("gen"))

	if viper.GetBool("metrics") {
		fmt.Fprintln(out)
		database.WritePrometheus(out)
	}
	return nil
}

// Print writes the keys of database with the given prefix to w. With gen > 0 only the
// value visible at gen is printed, otherwise the whole chain.
func Print(w io.Writer, database vchain.VChainDB, prefix string, gen int64) {
	keys := database.Keys()
	fmt.Fprintf(w, "generation: %d\n", database.Gen())
	fmt.Fprintf(w, "keys:       %d\n\n", len(keys))

	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		if gen > 0 {
			val, ok := database.GetAt(key, gen)
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s = %s\n", key, FormatValue(val))
			continue
		}

		fmt.Fprintf(w, "%s (depth %d)\n", key, database.Depth(key))
		for _, v := range database.Versions(key) {
			if v.Deleted {
				fmt.Fprintf(w, "  @%-10d <deleted>\n", v.Gen)
				continue
			}
			fmt.Fprintf(w, "  @%-10d %s\n", v.Gen, FormatValue(v.Value))
		}
	}
}

// FormatValue renders a value with its tag, e.g. Int32(42)
func FormatValue(v codec.Value) string {
	switch tv := v.(type) {
	case nil, codec.Null:
		return "Null"
	case codec.String:
		return fmt.Sprintf("String(%q)", string(tv))
	case codec.Bytes:
		return fmt.Sprintf("Bytes(%x)", []byte(tv))
	case codec.Time:
		return fmt.Sprintf("Time(%s)", tv.Time.Format(time.RFC3339Nano))
	case *codec.LazyString:
		s, err := tv.Text()
		if err != nil {
			return fmt.Sprintf("CompressedString(<%v>)", err)
		}
		return fmt.Sprintf("CompressedString(%q)", s)
	default:
		return fmt.Sprintf("%s(%v)", v.Tag(), v)
	}
}
