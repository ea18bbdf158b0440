package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/schollz/midicanvas/internal/bankscan"
	"github.com/schollz/midicanvas/internal/insbank"
	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/midiport"
	"github.com/schollz/midicanvas/internal/module"
	"github.com/schollz/midicanvas/internal/moduleconf"
	"github.com/schollz/midicanvas/internal/player"
	"github.com/schollz/midicanvas/internal/playlist"
	"github.com/schollz/midicanvas/internal/tui"
)

var (
	flagConfig   string
	flagInsDir   string
	flagDebugLog string
	flagSrcType  string
	flagDstType  string
	flagOutPort  string
	flagOscAddr  string
	flagLoops    uint32
	flagNoReset  bool
	flagNoStrict bool
	flagNoCTF    bool
	flagQuiet    bool
	flagShowIns  bool
)

type banks struct {
	gm1, gm2, gs, xg, ygs, mt32 *insbank.Bank
}

func main() {
	root := &cobra.Command{
		Use:   "midicanvas",
		Short: "Play MIDI files authored for one sound module on another",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebugLog != "" {
				f, err := os.OpenFile(flagDebugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					log.Printf("Fatal: %v", err)
					os.Exit(1)
				}
				log.SetOutput(f)
				log.SetFlags(log.LstdFlags | log.Lshortfile)
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "module configuration file (JSON)")
	root.PersistentFlags().StringVar(&flagInsDir, "ins-dir", "_MidiInsFiles", "directory with .ins instrument lists")
	root.PersistentFlags().StringVar(&flagDebugLog, "debug", "", "if set, write debug logs to this file; empty disables logging")

	playCmd := &cobra.Command{
		Use:   "play [files and playlists...]",
		Short: "Scan and play MIDI files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPlay,
	}
	playCmd.Flags().StringVar(&flagSrcType, "src", "", "force the source module type")
	playCmd.Flags().StringVar(&flagDstType, "dst", "", "force the destination module type")
	playCmd.Flags().StringVar(&flagOutPort, "out", "", "output MIDI port (partial name match)")
	playCmd.Flags().StringVar(&flagOscAddr, "osc", "", "send output over OSC (host:port)")
	playCmd.Flags().Uint32Var(&flagLoops, "loops", 2, "loop count for files with loop markers (0 = forever)")
	playCmd.Flags().BoolVar(&flagNoReset, "no-reset", false, "skip the device reset on start")
	playCmd.Flags().BoolVar(&flagNoStrict, "no-strict", false, "disable strict instrument map enforcement")
	playCmd.Flags().BoolVar(&flagNoCTF, "no-ctf", false, "disable Capital Tone Fallback emulation")
	playCmd.Flags().BoolVar(&flagQuiet, "quiet", false, "play without the terminal display")
	playCmd.Flags().BoolVar(&flagShowIns, "show-ins", false, "log instrument changes")

	scanCmd := &cobra.Command{
		Use:   "scan [files...]",
		Short: "Detect the source module of MIDI files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runScan,
	}

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "List available MIDI output ports",
		Run: func(cmd *cobra.Command, args []string) {
			for i, name := range midiport.Devices() {
				fmt.Printf("%2d: %s\n", i, name)
			}
		},
	}

	root.AddCommand(playCmd, scanCmd, portsCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadBank(dir, name string) *insbank.Bank {
	path := filepath.Join(dir, name)
	bank, err := insbank.Load(path)
	if err != nil {
		log.Printf("could not load %s: %v", path, err)
		return nil
	}
	return bank
}

func loadBanks(cfg *moduleconf.Config) banks {
	var b banks
	files := map[string]**insbank.Bank{
		"gm.ins":   &b.gm1,
		"gml2.ins": &b.gm2,
		"gs.ins":   &b.gs,
		"xg.ins":   &b.xg,
		"ygs.ins":  &b.ygs,
		"mt32.ins": &b.mt32,
	}
	for name, dst := range files {
		*dst = loadBank(flagInsDir, name)
	}
	// explicit config entries override the directory convention
	for typeName, path := range cfg.InsFiles {
		modType, ok := module.ParseType(typeName)
		if !ok {
			log.Printf("unknown module type %q in insFiles", typeName)
			continue
		}
		bank, err := insbank.Load(path)
		if err != nil {
			log.Printf("could not load %s: %v", path, err)
			continue
		}
		switch {
		case modType == module.GM1:
			b.gm1 = bank
		case modType == module.GM2:
			b.gm2 = bank
		case modType == module.TG300B:
			b.ygs = bank
		case modType == module.MT32:
			b.mt32 = bank
		case modType.Family() == module.TypeGS:
			b.gs = bank
		case modType.Family() == module.TypeXG:
			b.xg = bank
		}
	}
	return b
}

func loadConfig() *moduleconf.Config {
	if flagConfig == "" {
		return moduleconf.Default()
	}
	cfg, err := moduleconf.Load(flagConfig)
	if err != nil {
		log.Printf("%v; using defaults", err)
		return moduleconf.Default()
	}
	return cfg
}

func scanContext(b banks) *bankscan.Context {
	return &bankscan.Context{
		BankGM2:  b.gm2,
		BankGS:   b.gs,
		BankXG:   b.xg,
		Warnings: log.Printf,
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	songs, err := playlist.Expand(args)
	if err != nil {
		return err
	}
	ctx := scanContext(loadBanks(loadConfig()))
	for _, song := range songs {
		f, err := midifile.Load(song.Path)
		if err != nil {
			fmt.Printf("%s: %v\n", song.Path, err)
			continue
		}
		r := ctx.Scan(f, true)
		fmt.Printf("%s: %s (reset %s, GS %s..%s, XG %s, %d port(s))\n",
			song.Path, r.ModType.LongName(), resetName(r.HasReset),
			gsName(r.GSMin), gsName(r.GSOpt), xgName(r.XGOpt), r.NumPorts)
	}
	return nil
}

func resetName(reset uint8) string {
	if reset == 0xFF {
		return "none"
	}
	return module.Type(reset).String()
}

func gsName(model uint8) string {
	if model&0x80 != 0 {
		return "incompatible"
	}
	return (module.TypeGS | module.Type(model)).String()
}

func xgName(model uint8) string {
	if model&0x80 != 0 {
		return "incompatible"
	}
	return (module.TypeXG | module.Type(model)).String()
}

func openSinks(coll *module.Collection, modID, numPorts int) ([]midiport.Sink, error) {
	if flagOscAddr != "" {
		host, portStr, found := strings.Cut(flagOscAddr, ":")
		if !found {
			return nil, fmt.Errorf("invalid OSC address %q", flagOscAddr)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid OSC port %q", portStr)
		}
		return []midiport.Sink{midiport.NewOscSink(host, port)}, nil
	}
	if flagOutPort != "" {
		dev, err := midiport.OpenDevice(flagOutPort)
		if err != nil {
			return nil, err
		}
		return []midiport.Sink{dev}, nil
	}

	mod := coll.Get(modID)
	names := midiport.Devices()
	var sinks []midiport.Sink
	for i, portID := range mod.Ports {
		if numPorts > 0 && len(sinks) >= numPorts {
			break
		}
		if portID < 0 || portID >= len(names) {
			return nil, fmt.Errorf("module %s references unknown port %d", mod.Name, portID)
		}
		dev, err := midiport.OpenDevice(names[portID])
		if err != nil {
			return nil, err
		}
		var sink midiport.Sink = dev
		if i < len(mod.DelayTime) && mod.DelayTime[i] > 0 {
			sink = &midiport.Delayed{Target: dev, DelayMS: mod.DelayTime[i]}
		}
		sinks = append(sinks, sink)
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("module %s has no usable ports", mod.Name)
	}
	return sinks, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	songs, err := playlist.Expand(args)
	if err != nil {
		return err
	}
	cfg := loadConfig()
	b := loadBanks(cfg)
	coll, err := cfg.Collection()
	if err != nil {
		return err
	}
	ctx := scanContext(b)
	defer midiport.CloseAll()

	for _, song := range songs {
		if err := playSong(song.Path, ctx, coll, b); err != nil {
			return err
		}
	}
	return nil
}

func playSong(path string, ctx *bankscan.Context, coll *module.Collection, b banks) error {
	f, err := midifile.Load(path)
	if err != nil {
		return err
	}
	scan := ctx.Scan(f, true)
	log.Printf("%s: detected %s", path, scan.ModType.LongName())

	srcType := scan.ModType
	if flagSrcType != "" {
		t, ok := module.ParseType(flagSrcType)
		if !ok {
			return fmt.Errorf("unknown source type %q", flagSrcType)
		}
		srcType = t
	}
	if srcType == module.None {
		srcType = module.GM1
	}

	modID := coll.Optimal(srcType)
	if modID < 0 {
		return fmt.Errorf("no configured module can play %s", srcType.LongName())
	}
	dstType := coll.Get(modID).Type
	if flagDstType != "" {
		t, ok := module.ParseType(flagDstType)
		if !ok {
			return fmt.Errorf("unknown destination type %q", flagDstType)
		}
		dstType = t
	}

	sinks, err := openSinks(coll, modID, scan.NumPorts)
	if err != nil {
		return err
	}

	p := player.NewPlayer()
	p.ShowInstruments = flagShowIns
	p.NumLoops = flagLoops
	p.SetInstrumentBank(module.GM1, b.gm1)
	p.SetInstrumentBank(module.GM2, b.gm2)
	p.SetInstrumentBank(module.TypeGS, b.gs)
	p.SetInstrumentBank(module.TypeXG, b.xg)
	p.SetInstrumentBank(module.TG300B, b.ygs)
	p.SetInstrumentBank(module.MT32, b.mt32)
	p.SetOutputPorts(sinks)

	flags := uint8(0)
	if !flagNoReset {
		flags |= player.OptReset
	}
	if !flagNoStrict {
		flags |= player.OptStrict
	}
	if !flagNoCTF {
		flags |= player.OptEnableCTF
	}
	p.SetOptions(player.Options{SrcType: srcType, DstType: dstType, Flags: flags})
	p.SetFile(f)

	if err := p.Start(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	// drive the engine at 1 kHz or better on its own goroutine
	done := make(chan struct{})
	go func() {
		defer close(done)
		last := time.Now()
		for p.Playing() {
			p.DoPlaybackStep()
			now := time.Now()
			if dt := now.Sub(last); dt >= time.Millisecond {
				p.NoteVis().AdvanceAge(uint32(dt.Milliseconds()))
				last = now
			}
			time.Sleep(500 * time.Microsecond)
		}
	}()

	if flagQuiet {
		<-done
	} else {
		m := tui.New(p, filepath.Base(path))
		prog := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := prog.Run(); err != nil {
			log.Printf("error running display: %v", err)
		}
	}
	p.Stop()
	<-done
	return nil
}
