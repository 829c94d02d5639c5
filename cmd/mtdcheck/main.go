package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/outofforest/mtdcheck/config"
	"github.com/outofforest/mtdcheck/fault"
	"github.com/outofforest/mtdcheck/mtd"
	"github.com/outofforest/mtdcheck/pkg/filedev"
	"github.com/outofforest/mtdcheck/pkg/memdev"
	"github.com/outofforest/mtdcheck/stack"
	"github.com/outofforest/mtdcheck/verify"
)

type options struct {
	blockSize   uint32
	eraseSize   uint32
	eraseBlocks uint32
	configPath  string
	image       string
	verbose     bool
}

var _ mtd.SectorSizer = &filedev.FileDev{}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}

	var exitCode int
	cmd := newRootCmd(stdout, stderr, &exitCode)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		err = fault.New(fault.InitFailure, fault.SiteConfig, err)
		fmt.Fprintf(stdout, "FAIL: config: %s\n", err)
		return fault.ExitCode(err)
	}
	return exitCode
}

func newRootCmd(stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:           "mtdcheck",
		Short:         "Flash storage stack integrity check",
		Long:          "Write a counter pattern over the whole flash device, read it back, complement it in place and check the device ends where its geometry says",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			*exitCode = run(cmd, opts, stdout, stderr)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	defaults := config.Default()
	root.Flags().Uint32Var(&opts.blockSize, "block-size", defaults.BlockSize, "flash block size in bytes")
	root.Flags().Uint32Var(&opts.eraseSize, "erase-size", defaults.EraseSize, "flash erase unit size in bytes")
	root.Flags().Uint32Var(&opts.eraseBlocks, "erase-blocks", defaults.EraseBlocks, "number of erase units")
	root.Flags().StringVar(&opts.configPath, "config", "", "geometry config file (JSON with comments)")
	root.Flags().StringVar(&opts.image, "image", "", "image file or block device backing the flash instead of memory")
	root.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug messages")

	return root
}

func run(cmd *cobra.Command, opts options, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		err = fault.New(fault.InitFailure, fault.SiteConfig, err)
		fmt.Fprintf(stdout, "FAIL: config: %s\n", err)
		return fault.ExitCode(err)
	}

	level := hclog.Info
	if opts.verbose {
		level = hclog.Debug
	}
	log := hclog.New(&hclog.LoggerOptions{
		Name:   "mtdcheck",
		Level:  level,
		Output: stderr,
	}).With("run", uuid.NewString())

	dev, closeDev, err := openBacking(cfg, opts.image)
	if err != nil {
		err = fault.New(fault.InitFailure, fault.SiteRawInit, err)
		fmt.Fprintf(stdout, "FAIL: init: %s\n", err)
		return fault.ExitCode(err)
	}
	defer func() {
		if err := closeDev(); err != nil {
			log.Warn("closing backing store failed", "err", err)
		}
	}()

	s, err := stack.New(cfg, dev, log)
	if err != nil {
		fmt.Fprintf(stdout, "FAIL: init: %s\n", err)
		return fault.ExitCode(err)
	}

	report := verify.Run(verify.Target{
		Device: s,
		Open: func(flag int) (verify.File, error) {
			f, err := s.Open(stack.DevicePath, flag)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}, log)

	fmt.Fprintln(stdout, verify.Summary(report))
	return verify.ExitCode(report)
}

func loadConfig(cmd *cobra.Command, opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("block-size") {
		cfg.BlockSize = opts.blockSize
	}
	if flags.Changed("erase-size") {
		cfg.EraseSize = opts.eraseSize
	}
	if flags.Changed("erase-blocks") {
		cfg.EraseBlocks = opts.eraseBlocks
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openBacking(cfg config.Config, image string) (mtd.Dev, func() error, error) {
	if image == "" {
		return memdev.FromArena(make([]byte, cfg.Size())), func() error { return nil }, nil
	}

	dev, err := filedev.Open(image, cfg.Size())
	if err != nil {
		return nil, nil, err
	}
	return dev, dev.Close, nil
}
