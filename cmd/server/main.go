package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/emberwake-mud/emberwake/pkg/boltstore"
	"github.com/emberwake-mud/emberwake/pkg/server"
	"github.com/emberwake-mud/emberwake/pkg/world"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("config", envDefault("EMBER_CONFIG", ""), "Path to YAML config file (env: EMBER_CONFIG)")
	port := flag.Int("port", 0, "Telnet port, overrides config (env: EMBER_PORT)")
	dataDir := flag.String("data", envDefault("EMBER_DATA", ""), "Data directory, overrides config (env: EMBER_DATA)")
	writeConfig := flag.String("writeconfig", "", "Write the default config to the given path and exit")
	debug := flag.Bool("debug", os.Getenv("EMBER_DEBUG") == "true", "Enable per-command trace logging (env: EMBER_DEBUG)")
	flag.Parse()

	server.SetDebug(*debug)
	log.Printf("Welcome to %s", server.VersionString())

	if *writeConfig != "" {
		if err := server.DefaultConfig().Save(*writeConfig); err != nil {
			log.Fatalf("Error writing config: %v", err)
		}
		log.Printf("Default config written to %s", *writeConfig)
		return
	}

	var conf *server.Config
	if *confFile != "" {
		var err error
		conf, err = server.LoadConfig(*confFile)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		log.Printf("Loaded config from %s", *confFile)
	} else {
		conf = server.DefaultConfig()
	}

	// Flags and environment override the config file
	if *port == 0 {
		if envPort := os.Getenv("EMBER_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}
	if *port != 0 {
		conf.Port = *port
	}
	if *dataDir != "" {
		conf.DataDir = *dataDir
	}
	if v := os.Getenv("EMBER_CLEARTEXT"); v != "" {
		b := strings.EqualFold(v, "true")
		conf.Cleartext = &b
	}
	if v := os.Getenv("EMBER_TLS"); v != "" {
		conf.TLS = strings.EqualFold(v, "true")
	}
	if conf.TLS && conf.TLSPort == 0 {
		conf.TLSPort = conf.Port + 1
	}
	if conf.TLS && (conf.TLSCert == "" || conf.TLSKey == "") {
		log.Fatalf("TLS is enabled but tls_cert and/or tls_key are not set")
	}

	if err := os.MkdirAll(conf.DataDir, 0755); err != nil {
		log.Fatalf("Error creating data directory %s: %v", conf.DataDir, err)
	}

	store, err := boltstore.Open(filepath.Join(conf.DataDir, "world.db"))
	if err != nil {
		log.Fatalf("Error opening world database: %v", err)
	}
	defer store.Close()

	w := world.New()
	if store.Seeded() {
		if err := store.LoadWorld(w); err != nil {
			log.Fatalf("Error loading world: %v", err)
		}
		rooms, things, players := w.Counts()
		log.Printf("World loaded from %s: %d rooms, %d things, %d players",
			store.Path(), rooms, things, players)
		for _, finding := range world.Check(w) {
			log.Printf("WORLD: integrity: %s", finding)
		}
	} else {
		start := world.Seed(w)
		if err := store.PutWorld(w); err != nil {
			log.Fatalf("Error saving seeded world: %v", err)
		}
		if err := store.MarkSeeded(); err != nil {
			log.Fatalf("Error marking world seeded: %v", err)
		}
		log.Printf("Seeded new world at %s, starting room %s", store.Path(), start.Ref)
	}

	game := server.NewGame(w, conf)
	game.Store = store

	if conf.AuditEnabled {
		audit, err := server.OpenAuditLog(conf.AuditDatabase, conf.AuditTimeout)
		if err != nil {
			log.Printf("WARNING: audit log disabled: %v", err)
		} else {
			game.Audit = audit
			defer audit.Close()
			log.Printf("Audit log: %s", conf.AuditDatabase)

			// Deferred after the audit close so it drains first.
			if game.Speech = server.NewSpeechLog(game); game.Speech != nil {
				defer game.Speech.Close()
				server.StartSpeechRetention(audit, time.Duration(conf.SpeechDays)*24*time.Hour)
			}
		}
	}

	help := server.NewHelpSystem(conf.HelpFile, conf.MOTDFile)
	game.Help = help
	help.Watch()
	defer help.Close()

	srv := server.NewServer(game)

	// A SIGINT/SIGTERM and an in-game @shutdown end the same way: save
	// the world, close the listeners, let Start return.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received %v, shutting down", sig)
		case <-game.ShutdownRequested():
			log.Printf("Shutdown requested in-game")
		}
		if err := store.PutWorld(game.World); err != nil {
			log.Printf("STORE: final world save: %v", err)
		}
		srv.Stop()
	}()

	log.Printf("Starting %s on port %d...", conf.WorldName, conf.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("%s has gone dark. Goodbye.", conf.WorldName)
}
