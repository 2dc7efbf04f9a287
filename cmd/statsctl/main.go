// statsctl inspects the statistics history persisted by vmstatsd.
//
// It opens the storage directory read-only, so it can run next to the
// daemon. Without a terminal on stdin it reads one command per line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/vmstats/config"
	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/loader"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/storage"
	"github.com/xtxerr/vmstats/internal/sysinfo"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "vmstats.yaml", "config file path")
	dataDir := flag.String("data-dir", "", "storage directory (overrides config)")
	command := flag.String("c", "", "run a single command and exit")
	maxRows := flag.Int("max-rows", config.DefaultShellMaxRows, "rows printed per result")
	history := flag.String("history", defaultHistoryPath(), "history file of the interactive shell")
	verbose := flag.Bool("v", false, "log storage activity")
	flag.Parse()

	level, _ := logging.ParseLevel("warn")
	if *verbose {
		level, _ = logging.ParseLevel("debug")
	}
	logging.InitWithHandler(logging.NewHandler(os.Stderr, level, false))

	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			return errors.ExitUsage
		}
		cfg = loader.DefaultConfig()
	}
	if *dataDir != "" {
		cfg.Storage.Dir = *dataDir
	}
	if err := loader.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return errors.ExitCode(err)
	}
	if cfg.Storage.MemoryOnly() {
		fmt.Fprintln(os.Stderr, "no storage directory configured (use -data-dir)")
		return errors.ExitUsage
	}
	cfg.Storage.ReadOnly = true

	sh, err := open(cfg, *maxRows)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return errors.ExitCode(err)
	}
	defer sh.Close()

	switch {
	case *command != "":
		if err := sh.Execute(*command); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return errors.ExitCode(err)
		}
		return errors.ExitOK
	case !term.IsTerminal(int(os.Stdin.Fd())):
		return batch(sh)
	default:
		interactive(sh, *history)
		return errors.ExitOK
	}
}

// open loads the persisted history into a fresh registry.
func open(cfg *loader.Config, maxRows int) (*shell, error) {
	reg, err := loader.BuildRegistry(cfg, sysinfo.DefaultStatistics())
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	svc, err := storage.New(&cfg.Storage, reg, clk)
	if err != nil {
		return nil, err
	}

	logs, err := svc.LoadAll(context.Background())
	if err != nil {
		return nil, err
	}

	sh := newShell(cfg, reg, svc, clk, os.Stdout)
	sh.maxRows = maxRows
	sh.restore(logs)
	return sh, nil
}

// batch executes stdin line by line. The exit code reflects the first
// failing command.
func batch(sh *shell) int {
	code := errors.ExitOK
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := sh.Execute(line); err != nil {
			if errors.Is(err, errExit) {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			if code == errors.ExitOK {
				code = errors.ExitCode(err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
		return errors.ExitInternal
	}
	return code
}

func interactive(sh *shell, historyPath string) {
	fmt.Printf("statsctl %s - %d metrics loaded. Type 'help' for commands.\n", Version, sh.reg.Len())

	hist := readHistory(historyPath)
	var exit bool

	p := prompt.New(
		func(line string) {
			line = strings.TrimSpace(line)
			if line == "" {
				return
			}
			appendHistory(historyPath, line)
			if err := sh.Execute(line); err != nil {
				if errors.Is(err, errExit) {
					exit = true
					return
				}
				fmt.Printf("error: %v\n", err)
			}
		},
		sh.Complete,
		prompt.OptionPrefix("statsctl> "),
		prompt.OptionTitle("statsctl"),
		prompt.OptionHistory(hist),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return exit }),
	)
	p.Run()
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, config.DefaultHistoryFile)
}

func readHistory(path string) []string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func appendHistory(path, line string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}
