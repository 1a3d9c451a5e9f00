package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"

	"github.com/vaultclaw/vaultclaw/pkg/agent"
	"github.com/vaultclaw/vaultclaw/pkg/audit"
	"github.com/vaultclaw/vaultclaw/pkg/config"
	"github.com/vaultclaw/vaultclaw/pkg/logger"
	"github.com/vaultclaw/vaultclaw/pkg/providers"
	"github.com/vaultclaw/vaultclaw/pkg/rpcserver"
	"github.com/vaultclaw/vaultclaw/pkg/session"
	"github.com/vaultclaw/vaultclaw/pkg/state"
	"github.com/vaultclaw/vaultclaw/pkg/stream"
	"github.com/vaultclaw/vaultclaw/pkg/tools"
	"github.com/vaultclaw/vaultclaw/pkg/undo"
	"github.com/vaultclaw/vaultclaw/pkg/vault"
)

var version = "dev"

const cliName = "vaultclaw"

func main() {
	// .env is optional; real config comes from the YAML file and env vars.
	_ = godotenv.Load()

	args := os.Args[1:]
	command := "chat"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "chat":
		runChat(args)
	case "ask":
		runAsk(args)
	case "serve":
		runServe(args)
	case "models":
		runModels(args)
	case "version":
		fmt.Printf("%s %s\n", cliName, version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - an LLM agent for your markdown vault

Usage:
  %s chat            interactive agent chat (default)
  %s ask <question>  one-shot question, streamed when the backend supports it
  %s serve           run the JSON-RPC tool server (loopback only)
  %s models          list models available on the configured backend
  %s version         print the version

Configuration: %s (VAULTCLAW_* env vars override)
`, cliName, cliName, cliName, cliName, cliName, cliName, config.DefaultConfigPath())
}

type runtimeDeps struct {
	cfg      *config.Config
	store    *vault.FS
	log      *undo.Log
	registry *tools.Registry
	sink     *audit.Sink
}

func setup(args []string) *runtimeDeps {
	cfgPath := config.DefaultConfigPath()
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "--config" || args[i] == "-c" {
			cfgPath = args[i+1]
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	store, err := vault.NewFS(cfg.Vault.Path, cfg.Vault.Extension)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vault error: %v\n", err)
		os.Exit(1)
	}

	log := undo.NewLog(store, cfg.Agent.UndoCapacity)
	registry := tools.NewRegistry()
	if err := tools.RegisterVaultTools(registry, store, log, cfg.Vault.Extension); err != nil {
		fmt.Fprintf(os.Stderr, "tool registration failed: %v\n", err)
		os.Exit(1)
	}

	var sink *audit.Sink
	if cfg.Log.AuditPath != "" {
		sink, err = audit.NewSink(cfg.Log.AuditPath)
		if err != nil {
			logger.WarnCF("main", "Audit disabled", map[string]interface{}{"error": err.Error()})
		}
	}

	logger.InfoCF("main", "Vault ready", map[string]interface{}{
		"vault":    store.Root(),
		"tools":    len(registry.Names()),
		"provider": cfg.Provider.Kind,
	})
	return &runtimeDeps{cfg: cfg, store: store, log: log, registry: registry, sink: sink}
}

// close flushes pending audit lines. Safe when auditing is disabled.
func (d *runtimeDeps) close() {
	if d.sink != nil {
		d.sink.Close()
	}
}

func buildProvider(cfg *config.Config) providers.Provider {
	switch cfg.Provider.Kind {
	case "claude":
		return providers.NewClaude(cfg.Provider.APIKey, cfg.Provider.Model)
	case "openai":
		return providers.NewOpenAI(cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.Model)
	default:
		return providers.NewLocal(cfg.Provider.BaseURL, cfg.Provider.Model)
	}
}

func runChat(args []string) {
	deps := setup(args)
	defer deps.close()
	provider := buildProvider(deps.cfg)

	loop := agent.NewLoop(
		provider,
		deps.registry,
		agent.NewContextBuilder(deps.store.Root(), deps.registry),
		agent.WithMaxIterations(deps.cfg.Agent.MaxIterations),
		agent.WithTimeout(time.Duration(deps.cfg.Agent.TimeoutSeconds)*time.Second),
		agent.WithAudit(deps.sink),
	)

	// Workspace state and chat history survive across runs.
	workspace := state.NewManager(deps.store.Root())
	if active := workspace.ActiveNote(); active != "" {
		deps.store.SetActiveDocument(active)
	}
	sessions := session.NewManager(sessionStorageDir())
	sessionKey := session.KeyForVault(deps.store.Root())

	fmt.Printf("%s %s — vault: %s\n", cliName, version, deps.store.Root())
	fmt.Println("Type a request. Commands: 'open <note>', 'undo', 'new' (fresh session), 'exit'.")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".vaultclaw_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline init failed: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		switch input {
		case "exit", "quit":
			fmt.Println("Goodbye!")
			return
		case "undo":
			doUndo(deps.log)
			continue
		case "new":
			sessions.Clear(sessionKey)
			_ = sessions.Save(sessionKey)
			fmt.Println("Started a fresh session.")
			continue
		}
		if note, ok := strings.CutPrefix(input, "open "); ok {
			doOpen(deps.store, workspace, strings.TrimSpace(note))
			continue
		}

		scope := agent.ScopeVault
		if deps.store.ActiveDocument() != "" {
			scope = agent.ScopeNote
		}
		resp := loop.Run(context.Background(), agent.Request{
			Message:    input,
			Scope:      scope,
			ActivePath: deps.store.ActiveDocument(),
			History:    sessions.History(sessionKey),
		})

		for _, action := range resp.ActionsPerformed {
			fmt.Println("  • " + action)
		}
		fmt.Println(resp.Answer)
		if len(resp.Sources) > 0 {
			fmt.Println("Sources: " + strings.Join(resp.Sources, ", "))
		}

		sessions.AddMessage(sessionKey, "user", input)
		sessions.AddMessage(sessionKey, "assistant", resp.Answer)
		sessions.Truncate(sessionKey, historyKeep)
		if err := sessions.Save(sessionKey); err != nil {
			logger.WarnCF("main", "Session save failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// historyKeep bounds how many past messages are replayed into the prompt.
const historyKeep = 40

func sessionStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vaultclaw", "sessions")
}

func doOpen(store *vault.FS, workspace *state.Manager, note string) {
	if note == "" {
		fmt.Println("Usage: open <note>")
		return
	}
	path := store.NormalizePath(note)
	ok, err := store.Exists(context.Background(), path)
	if err != nil || !ok {
		fmt.Printf("No such note: %s\n", note)
		return
	}
	store.SetActiveDocument(path)
	if err := workspace.SetActiveNote(path); err != nil {
		logger.WarnCF("main", "Could not persist active note", map[string]interface{}{"error": err.Error()})
	}
	fmt.Printf("Opened %s\n", path)
}

// runAsk answers a single question without the tool loop. Streaming backends
// print deltas as they arrive; others print the full answer at once.
func runAsk(args []string) {
	deps := setup(args)
	provider := buildProvider(deps.cfg)

	var parts []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" || args[i] == "-c" {
			i++
			continue
		}
		parts = append(parts, args[i])
	}
	question := strings.TrimSpace(strings.Join(parts, " "))
	if question == "" {
		fmt.Fprintf(os.Stderr, "usage: %s ask <question>\n", cliName)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(deps.cfg.Agent.TimeoutSeconds)*time.Second)
	defer cancel()
	messages := []providers.Message{{Role: "user", Content: question}}

	if s, ok := provider.(providers.Streamer); ok {
		_, err := s.StreamChat(ctx, messages, providers.StreamOptions{}, stream.Callbacks{
			OnMessageDelta: func(delta string) { fmt.Print(delta) },
		})
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ask failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	text, err := provider.Chat(ctx, messages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ask failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(text)
}

func runServe(args []string) {
	deps := setup(args)

	srv, err := rpcserver.New(deps.registry, deps.cfg.Server.Host, deps.cfg.Server.Port, cliName, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
	if deps.sink != nil {
		srv.SetAudit(deps.sink)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	fmt.Printf("%s JSON-RPC server on http://%s (Ctrl-C to stop)\n", cliName, srv.Addr())
	if err := srv.Start(); err != nil {
		deps.close()
		fmt.Fprintf(os.Stderr, "server stopped: %v\n", err)
		os.Exit(1)
	}
	deps.close()
}

func doUndo(log *undo.Log) {
	entry, err := log.Undo(context.Background())
	if err != nil {
		if err == undo.ErrEmpty {
			fmt.Println("Nothing to undo.")
			return
		}
		fmt.Fprintf(os.Stderr, "undo failed: %v\n", err)
		return
	}
	fmt.Printf("Reverted: %s\n", entry.Description)
}

func runModels(args []string) {
	deps := setup(args)
	provider := buildProvider(deps.cfg)

	lister, ok := provider.(providers.Lister)
	if !ok {
		fmt.Printf("The %s provider does not support model listing.\n", deps.cfg.Provider.Kind)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	models, err := lister.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not list models: %v\n", err)
		os.Exit(1)
	}
	if len(models) == 0 {
		fmt.Println("No models available.")
		return
	}
	for _, m := range models {
		fmt.Println(m)
	}
}
