// Command fixengine is the single launcher for a fixengine process: it
// loads one YAML config that may declare both initiator- and
// acceptor-role sessions, wires the session registry, the acceptor
// listener, and the admin/metrics HTTP surface, and runs until a shutdown
// signal arrives. Grounded on the teacher's main.go: flag-parsed config
// path, logrus text formatter, SIGINT/SIGTERM-driven context cancellation,
// and "build components, then go-run each one, block on the one that
// matters most" wiring order.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/fixengine/fixengine/internal/adminapi"
	"github.com/fixengine/fixengine/internal/config"
	"github.com/fixengine/fixengine/internal/dictionary"
	"github.com/fixengine/fixengine/internal/engine"
	"github.com/fixengine/fixengine/internal/registry"
	"github.com/fixengine/fixengine/internal/session"
	"github.com/fixengine/fixengine/internal/sessionmetrics"
	"github.com/fixengine/fixengine/internal/store"
	"github.com/fixengine/fixengine/internal/wire"
)

// Version increments with change magnitude, same convention the teacher
// uses: major for breaking changes, minor for new features, patch for
// fixes.
var Version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Infof("starting fixengine v%s", Version)
	log.Infof("  sessions configured: %d", len(cfg.Sessions))
	log.Infof("  store: %s at %s", cfg.Store.Type, cfg.Store.Path)
	log.Infof("  admin listen addr: %s", cfg.Admin.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down...")
		cancel()
	}()

	metrics := sessionmetrics.NewStore(cfg.Admin.MetricsPath)
	manager := engine.NewManager(metrics)

	// currentEntries is refreshed by the registry's Loader on every
	// reload so the acceptor Listener always resolves against the latest
	// configured acceptor sessions.
	var currentEntries atomic.Value
	currentEntries.Store([]config.SessionEntry{})

	load := func() ([]registry.Counterparty, error) {
		c, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		currentEntries.Store(c.Sessions)
		return toCounterparties(c.Sessions), nil
	}

	factory := func(c registry.Counterparty) (store.Store, session.Codec, session.Application) {
		st, err := buildStore(cfg.Store, c.ID())
		if err != nil {
			log.Fatalf("failed to open store for %s: %v", c.ID(), err)
		}
		entries, _ := currentEntries.Load().([]config.SessionEntry)
		dict := resolveDictionary(entries, c.BeginString, c.SenderCompID, c.TargetCompID)
		return st, wire.NewCodec(c.BeginString, dict), session.NopApplication{}
	}

	reg := registry.New(manager, load, factory, cfg.Registry.ReloadInterval)
	go reg.Run(ctx)

	if cfg.ListenAddr != "" {
		ln, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			log.Fatalf("failed to bind acceptor listen addr %s: %v", cfg.ListenAddr, err)
		}
		resolve := func(peerSenderCompID, peerTargetCompID string) (session.Config, store.Store, session.Codec, session.Application, bool) {
			entries, _ := currentEntries.Load().([]config.SessionEntry)
			for _, e := range entries {
				if e.Role != "acceptor" {
					continue
				}
				// The peer's SenderCompID is our TargetCompID and vice
				// versa.
				if e.TargetCompID == peerSenderCompID && e.SenderCompID == peerTargetCompID {
					scfg := sessionConfig(e)
					st, err := buildStore(cfg.Store, scfg.ID())
					if err != nil {
						log.Errorf("failed to open store for %s: %v", scfg.ID(), err)
						return session.Config{}, nil, nil, nil, false
					}
					dict := loadDictionary(e.DictionaryPath, e.BeginString)
					return scfg, st, wire.NewCodec(scfg.BeginString, dict), session.NopApplication{}, true
				}
			}
			return session.Config{}, nil, nil, nil, false
		}

		listener := engine.NewListener(manager, ln, resolve)
		go func() {
			if err := listener.Serve(ctx); err != nil {
				log.Errorf("acceptor listener stopped: %v", err)
			}
		}()
		log.Infof("acceptor listening on %s", cfg.ListenAddr)
	}

	if cfg.Admin.ListenAddr == "" {
		log.Info("admin surface disabled")
		<-ctx.Done()
		return
	}

	admin := adminapi.New(cfg.Admin.ListenAddr, manager, metrics)
	if err := admin.Run(ctx); err != nil {
		log.Fatalf("admin server error: %v", err)
	}
}

func sessionConfig(e config.SessionEntry) session.Config {
	return session.Config{
		BeginString:         e.BeginString,
		SenderCompID:        e.SenderCompID,
		TargetCompID:        e.TargetCompID,
		HeartBtInt:          e.HeartBtInt,
		LogonTimeout:        e.LogonTimeout,
		ShutdownTimeout:     e.ShutdownTimeout,
		SendingTimeAccuracy: e.SendingTimeAccuracy,
	}
}

func toCounterparties(entries []config.SessionEntry) []registry.Counterparty {
	out := make([]registry.Counterparty, 0, len(entries))
	for _, e := range entries {
		role := session.Initiator
		if e.Role == "acceptor" {
			role = session.Acceptor
		}
		out = append(out, registry.Counterparty{
			Config:      sessionConfig(e),
			Role:        role,
			Address:     e.Address,
			DialTimeout: e.DialTimeout,
		})
	}
	return out
}

func buildStore(cfg config.StoreConfig, sessionID string) (store.Store, error) {
	if cfg.Type == "memory" {
		return store.NewMemStore(), nil
	}
	return store.NewFileStore(cfg.Path)
}

// resolveDictionary finds the SessionEntry matching the given identity
// triple and loads its configured dictionary, falling back to
// dictionary.Default when no entry matches or no path was configured.
func resolveDictionary(entries []config.SessionEntry, beginString, senderCompID, targetCompID string) *dictionary.Dictionary {
	for _, e := range entries {
		if e.BeginString == beginString && e.SenderCompID == senderCompID && e.TargetCompID == targetCompID {
			return loadDictionary(e.DictionaryPath, beginString)
		}
	}
	return dictionary.Default(beginString)
}

// loadDictionary loads the dictionary at path, falling back to
// dictionary.Default(beginString) if path is empty or fails to load.
func loadDictionary(path, beginString string) *dictionary.Dictionary {
	if path == "" {
		return dictionary.Default(beginString)
	}
	d, err := dictionary.Load(path)
	if err != nil {
		log.Errorf("failed to load dictionary %s, falling back to default: %v", path, err)
		return dictionary.Default(beginString)
	}
	return d
}
