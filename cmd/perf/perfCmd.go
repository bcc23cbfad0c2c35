package perf

import (
	"encoding/csv"
	"errors"
	"fmt"
	"github.com/ValentinKolb/snapKV/cmd/util"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/common"
	"github.com/ValentinKolb/snapKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	log     = logger.GetLogger(common.LoggerCLI)
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for snapKV stores",
		Long:    "Run a set of benchmarks against an in-process lstore or a single replica dstore.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfOpsPerThread     = 1000
	perfSkip             = make([]string, 0)
)

func init() {
	util.SetupStoreFlags(PerfCmd)

	// add flags
	key := "store"
	PerfCmd.Flags().String(key, "lstore", util.WrapString("Store implementation to benchmark (lstore, dstore)"))
	key = "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. publish,get)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "ops"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per thread and benchmark"))
	key = "large-value-size"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How large the value for the publish-large test should be (in KB)"))
	key = "keys"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfOpsPerThread = viper.GetInt("ops")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfKeySpread <= 0 || perfNumThreads <= 0 || perfOpsPerThread <= 0 {
		return fmt.Errorf("keys, threads and ops must be positive")
	}
	return nil
}

// benchmark is a single named test
type benchmark struct {
	name string
	// setup prepares the keys of the test
	setup func(s store.IStore, keys []string) error
	// op is called with the counter of the calling thread
	op func(s store.IStore, keys []string, counter int) error
}

func run(_ *cobra.Command, _ []string) error {
	conf, err := util.GetConfig()
	if err != nil {
		return err
	}
	storeType := viper.GetString("store")

	fmt.Println("Performance testing tool for snapKV stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Store: %s\n", storeType)
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Operations per thread: %d\n", perfOpsPerThread)
	fmt.Println()

	s, closeStore, err := util.OpenStore(conf, storeType)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Errorf("Failed to close store: %v", err)
		}
	}()

	fmt.Println("starting tests...")

	registry := gometrics.NewRegistry()
	var names []string
	for _, b := range benchmarks() {
		if shouldSkip(b.name) {
			printSkipped(b.name)
			continue
		}
		timer := gometrics.GetOrRegisterTimer(b.name, registry)
		if err := runBenchmark(s, b, timer); err != nil {
			return fmt.Errorf("benchmark %s: %w", b.name, err)
		}
		names = append(names, b.name)
		printResult(b.name, timer.Snapshot())
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, names, registry, conf, storeType); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// benchmarks returns all tests in the order they are run
func benchmarks() []benchmark {
	value := codec.String("test")
	largeValue := codec.Bytes(make([]byte, perfLargeValueSizeKB*1024))

	publishAll := func(s store.IStore, keys []string) error {
		for _, k := range keys {
			if _, err := s.Publish(k, value); err != nil {
				return err
			}
		}
		return nil
	}

	return []benchmark{
		{
			name: "publish",
			op: func(s store.IStore, keys []string, i int) error {
				_, err := s.Publish(keys[i%len(keys)], value)
				return err
			},
		},
		{
			name: "publish-large",
			op: func(s store.IStore, keys []string, i int) error {
				_, err := s.Publish(keys[i%len(keys)], largeValue)
				return err
			},
		},
		{
			name:  "get",
			setup: publishAll,
			op: func(s store.IStore, keys []string, i int) error {
				_, _, err := s.Get(keys[i%len(keys)])
				return err
			},
		},
		{
			name:  "get-at",
			setup: publishAll,
			op: func(s store.IStore, keys []string, i int) error {
				gen, err := s.Gen()
				if err != nil {
					return err
				}
				_, _, err = s.GetAt(keys[i%len(keys)], gen/2)
				return err
			},
		},
		{
			name:  "snapshot",
			setup: publishAll,
			op: func(s store.IStore, keys []string, i int) error {
				snap, err := s.Snapshot()
				if err != nil {
					return err
				}
				if _, _, err := snap.Get(keys[i%len(keys)]); err != nil {
					_ = snap.Close()
					return err
				}
				return snap.Close()
			},
		},
		{
			name:  "delete",
			setup: publishAll,
			op: func(s store.IStore, keys []string, i int) error {
				// deleting a deleted key is expected to fail
				_, err := s.Delete(keys[i%len(keys)])
				if errors.Is(err, store.ErrNotFound) {
					return nil
				}
				return err
			},
		},
		{
			name:  "has",
			setup: publishAll,
			op: func(s store.IStore, keys []string, i int) error {
				_, err := s.Has(keys[i%len(keys)])
				return err
			},
		},
		{
			name: "has-not",
			op: func(s store.IStore, _ []string, i int) error {
				_, err := s.Has(fmt.Sprintf("%s/has-not-%d", perfKeyPrefix, i%100))
				return err
			},
		},
		{
			name:  "mixed",
			setup: publishAll,
			op: func(s store.IStore, keys []string, i int) error {
				key := keys[i%len(keys)]
				var err error
				switch i % 4 {
				case 0: // publish
					_, err = s.Publish(key, value)
				case 1: // get
					_, _, err = s.Get(key)
				case 2: // delete
					_, err = s.Delete(key)
					if errors.Is(err, store.ErrNotFound) {
						err = nil
					}
				case 3: // has
					_, err = s.Has(key)
				}
				return err
			},
		},
	}
}

// runBenchmark runs b on perfNumThreads threads and records every operation in timer.
// Errors of single operations are logged, only setup errors abort the benchmark.
func runBenchmark(s store.IStore, b benchmark, timer gometrics.Timer) error {
	keys := getKeys(b.name)
	if b.setup != nil {
		if err := b.setup(s, keys); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	wg.Add(perfNumThreads)
	for t := 0; t < perfNumThreads; t++ {
		go func(t int) {
			defer wg.Done()
			for i := 0; i < perfOpsPerThread; i++ {
				start := time.Now()
				err := b.op(s, keys, t*perfOpsPerThread+i)
				timer.UpdateSince(start)
				if err != nil {
					log.Warningf("(%s) - error performing operation: %v", b.name, err)
				}
			}
		}(t)
	}
	wg.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getKeys creates the test keys of a benchmark
func getKeys(prefix string) []string {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}
	return keys
}

func printSkipped(test string) {
	fmt.Printf("%-20sskipped\n", test)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, t gometrics.Timer) {
	if t.Count() == 0 {
		printSkipped(test)
		return
	}
	ps := t.Percentiles([]float64{0.5, 0.99})
	fmt.Printf("%-20s%s/op\tp50 %s\tp99 %s\t%.0f ops/sec\n",
		test, time.Duration(t.Mean()), time.Duration(ps[0]), time.Duration(ps[1]), t.RateMean())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, names []string, registry gometrics.Registry, conf *common.Config, storeType string) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Count", "MeanNs", "P50Ns", "P99Ns", "MaxNs", "OpsPerSec",
		"Store", "EngineShards", "GCInterval", "RetainGenerations", "RefreshMode",
		"Threads", "OpsPerThread", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, name := range names {
		timer, ok := registry.Get(name).(gometrics.Timer)
		if !ok {
			continue
		}
		t := timer.Snapshot()
		ps := t.Percentiles([]float64{0.5, 0.99})

		row := []string{
			name,
			strconv.FormatInt(t.Count(), 10),
			fmt.Sprintf("%.0f", t.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strconv.FormatInt(t.Max(), 10),
			fmt.Sprintf("%.0f", t.RateMean()),
			storeType,
			strconv.Itoa(conf.Shards),
			conf.GCInterval.String(),
			strconv.FormatInt(conf.RetainGenerations, 10),
			conf.RefreshMode,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfOpsPerThread),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", name, err)
		}
	}

	return nil
}
