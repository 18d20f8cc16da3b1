package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/strokectl/internal/auth"
	"github.com/danmuck/strokectl/internal/bridge"
	"github.com/danmuck/strokectl/internal/observability"
	"github.com/danmuck/strokectl/internal/protocol/relay"
	"github.com/danmuck/strokectl/internal/server"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const adminTokenEnv = "STROKECTL_ADMIN_TOKEN"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := loadDotEnv(".env"); err != nil {
		return err
	}
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	observability.InitLogger("bridgectl", opts.Bridge.InstanceID)

	b, err := bridge.New(opts.Bridge)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, b, opts)
}

// parseOptions layers defaults, the optional config file and explicit
// flags, then resolves the relay URL. A missing session key fails here,
// before anything is dialed.
func parseOptions(args []string) (options, error) {
	fs := flag.NewFlagSet("bridgectl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a bridgectl config.toml")
	entry := fs.String("url", "", "relay entry url; its key parameter is honored")
	key := fs.String("key", "", "session key")
	relayBase := fs.String("relay", "", "relay base url")
	hw := fs.String("hardware", "", "hardware server url (default ws://localhost:12345)")
	policy := fs.String("policy", "", "device selection policy: linear-or-first|linear-only")
	admin := fs.String("admin", "", "admin listen address")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := defaultOptions()
	if *configPath != "" {
		if err := loadOptions(*configPath, &opts); err != nil {
			return options{}, err
		}
	}

	var policyErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			opts.EntryURL = *entry
		case "key":
			opts.Key = *key
		case "relay":
			opts.RelayBase = *relayBase
		case "hardware":
			opts.Bridge.HardwareURL = *hw
		case "policy":
			opts.Bridge.Core.Policy, policyErr = bridge.ParseSelectionPolicy(*policy)
		case "admin":
			opts.AdminListen = *admin
		}
	})
	if policyErr != nil {
		return options{}, policyErr
	}

	if opts.AdminToken == "" {
		opts.AdminToken = strings.TrimSpace(os.Getenv(adminTokenEnv))
	}
	if opts.Bridge.InstanceID == "" {
		opts.Bridge.InstanceID = uuid.NewString()
	}
	relayURL, err := relay.ResolveConnectURL(opts.EntryURL, opts.RelayBase, opts.Key, relay.RoleBridge)
	if err != nil {
		return options{}, err
	}
	opts.Bridge.RelayURL = relayURL
	return opts, nil
}

// serve runs the bridge and, when configured, its admin listener. The
// listener stops with the bridge, and a listener failure stops the bridge.
func serve(ctx context.Context, b *bridge.Bridge, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var adminDone chan error
	if opts.AdminListen != "" {
		var guard []server.Option
		if opts.AdminToken != "" {
			guard = append(guard, server.WithAuth(auth.StaticToken(opts.AdminToken)))
		}
		admin := server.New(b, opts.AdminListen, opts.CorsOrigins, guard...)
		adminDone = make(chan error, 1)
		go func() {
			err := admin.Run(ctx)
			if err != nil {
				log.Error().Err(err).Str("addr", opts.AdminListen).Msg("bridgectl admin listener failed")
				cancel()
			}
			adminDone <- err
		}()
	}

	err := b.Run(ctx)
	cancel()
	if adminDone != nil {
		if adminErr := <-adminDone; err == nil {
			err = adminErr
		}
	}
	return err
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
