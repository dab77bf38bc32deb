package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/drpcorg/objgraph"
	"github.com/drpcorg/objgraph/storage"
	"github.com/drpcorg/objgraph/utils"
	"github.com/ergochat/readline"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("new"),
	readline.PcItem("link"),
	readline.PcItem("unlink"),
	readline.PcItem("drop"),
	readline.PcItem("save"),
	readline.PcItem("unload"),
	readline.PcItem("load"),
	readline.PcItem("show"),
	readline.PcItem("list"),
	readline.PcItem("stats"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func run(cfg Config) error {
	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	logger := utils.NewDefaultLogger(cfg.LogLevel)
	dom := objgraph.NewDomain(newRegistry(), backend, objgraph.Options{Name: "objsh", Logger: logger})
	sh := NewShell(dom, os.Stdout)
	defer sh.Close()
	if p, ok := backend.(*storage.Pebble); ok {
		_ = sh.Register(p.Collector())
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     cfg.History,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	rl.CaptureExitSignal()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		err = sh.Exec(line)
		if err == io.EOF {
			return nil
		} else if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		}
	}
}

func main() {
	path := flag.String("config", "", "TOML config file")
	flag.Parse()
	cfg, err := loadConfig(*path)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "objsh: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "objsh: %v\n", err)
		os.Exit(1)
	}
}
