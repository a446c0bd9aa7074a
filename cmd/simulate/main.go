// vi: sw=4 ts=4:

/*

	Mnemonic:	simulate
	Abstract:	Thin CLI harness: load settings (YAML file + environment via
				viper, CLI overrides via pflag), run one or more simulation
				passes, write the JSON event stream per run. Kept minimal per
				SPEC_FULL.md - CLI parsing and config loading are explicitly
				out of scope for the simulator kernel.

	Date:		31 July 2026
	Author:		E. Scott Daniels
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/att/gopkgs/bleater"
	"github.com/att/sixtisch-sim/gizmos"
	"github.com/att/sixtisch-sim/managers"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var sheep = bleater.Mk_bleater(1, os.Stderr)

/*
	applyOverrides folds --set's key=value tokens onto settings's duration-like
	numeric fields, the same small "parse or default" step the teacher used
	for commandline/config tokens throughout managers/*.go.
*/
func applyOverrides(settings *managers.Settings, toks map[string]string) {
	if v, ok := toks["exec_numMotes"]; ok {
		settings.ExecNumMotes = int(gizmos.Atoll_default(v, int64(settings.ExecNumMotes)))
	}
	if v, ok := toks["exec_numSlotframesPerRun"]; ok {
		settings.ExecNumSlotframesPerRun = int(gizmos.Atoll_default(v, int64(settings.ExecNumSlotframesPerRun)))
	}
	if v, ok := toks["tsch_slotframeLength"]; ok {
		settings.TschSlotframeLength = int(gizmos.Atoll_default(v, int64(settings.TschSlotframeLength)))
	}
	if v, ok := toks["phy_numChans"]; ok {
		settings.PhyNumChans = int(gizmos.Atoll_default(v, int64(settings.PhyNumChans)))
	}
	if v, ok := toks["fragmentation_ff_vrb_table_size"]; ok {
		settings.FragmentationFfVrbTableSize = int(gizmos.Atoll_default(v, int64(settings.FragmentationFfVrbTableSize)))
	}
	if v, ok := toks["sixlowpan_reassembly_buffers_num"]; ok {
		settings.SixlowpanReassemblyBufNum = int(gizmos.Atoll_default(v, int64(settings.SixlowpanReassemblyBufNum)))
	}
}

func main() {
	sheep.Set_prefix("simulate")

	var cfgFile, outDir, overrides string
	var runCount, seed int

	pflag.StringVarP(&cfgFile, "config", "c", "", "YAML settings file")
	pflag.StringVarP(&outDir, "output-dir", "o", ".", "directory to write per-run event logs into")
	pflag.IntVarP(&runCount, "run-count", "N", 1, "number of independent runs, seed+i per run")
	pflag.IntVarP(&seed, "seed", "s", -1, "override the base seed (default: settings file's seed)")
	pflag.StringVar(&overrides, "set", "", "comma separated key=value overrides of duration-like numeric settings, e.g. exec_numSlotframesPerRun=200")
	pflag.Parse()

	settings := managers.Default()

	v := viper.New()
	v.SetEnvPrefix("SIXTISCH")
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			sheep.Baa(0, "CRI: unable to read config %s: %v", cfgFile, err)
			os.Exit(1)
		}
		if err := v.Unmarshal(settings); err != nil {
			sheep.Baa(0, "CRI: unable to apply config %s: %v", cfgFile, err)
			os.Exit(1)
		}
	}
	if seed >= 0 {
		settings.Seed = int64(seed)
	}
	applyOverrides(settings, gizmos.Toks2map(overrides))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		sheep.Baa(0, "CRI: unable to create output dir %s: %v", outDir, err)
		os.Exit(1)
	}

	baseSeed := settings.Seed
	for i := 0; i < runCount; i++ {
		runSettings := *settings
		runSettings.Seed = baseSeed + int64(i)

		path := filepath.Join(outDir, fmt.Sprintf("run-%03d.jsonl", i))
		f, err := os.Create(path)
		if err != nil {
			sheep.Baa(0, "CRI: unable to create %s: %v", path, err)
			os.Exit(1)
		}

		sheep.Baa(1, "run %d/%d: seed=%d -> %s", i+1, runCount, runSettings.Seed, path)
		err = managers.RunSimulation(&runSettings, f)
		f.Close()
		if err != nil {
			sheep.Baa(0, "ERR: run %d failed: %v", i, err)
			os.Exit(1)
		}
	}
}
