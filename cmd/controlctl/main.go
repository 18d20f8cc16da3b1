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
	"time"

	"github.com/danmuck/strokectl/internal/auth"
	"github.com/danmuck/strokectl/internal/controller"
	"github.com/danmuck/strokectl/internal/motion"
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
		fmt.Fprintf(os.Stderr, "controlctl: %v\n", err)
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
	observability.InitLogger("controlctl", opts.Controller.InstanceID)

	c, err := controller.New(opts.Controller)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, c, opts)
}

func parseOptions(args []string) (options, error) {
	fs := flag.NewFlagSet("controlctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a controlctl config.toml")
	entry := fs.String("url", "", "relay entry url; its key parameter is honored")
	key := fs.String("key", "", "session key")
	relayBase := fs.String("relay", "", "relay base url")
	model := fs.String("model", "", "motion model: spring|sampled")
	strokeMin := fs.Float64("stroke-min", motion.DefaultStrokeMin, "lower stroke bound in [0,1]")
	strokeMax := fs.Float64("stroke-max", motion.DefaultStrokeMax, "upper stroke bound in [0,1]")
	maxSpeed := fs.Float64("max-speed", float64(motion.DefaultSpeedClamp), "speed clamp in [0,1]")
	sampleInterval := fs.Duration("sample-interval", motion.DefaultSampleInterval, "sampled model send interval")
	admin := fs.String("admin", "", "admin listen address serving the pointer API")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := defaultOptions()
	if *configPath != "" {
		if err := loadOptions(*configPath, &opts); err != nil {
			return options{}, err
		}
	}

	engine := &opts.Controller.Engine
	var modelErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			opts.EntryURL = *entry
		case "key":
			opts.Key = *key
		case "relay":
			opts.RelayBase = *relayBase
		case "model":
			engine.Model, modelErr = motion.ParseModel(*model)
		case "stroke-min":
			engine.Range.Min = *strokeMin
		case "stroke-max":
			engine.Range.Max = *strokeMax
		case "max-speed":
			engine.SpeedClamp = motion.SpeedClamp(*maxSpeed)
		case "sample-interval":
			engine.SampleInterval = *sampleInterval
		case "admin":
			opts.AdminListen = *admin
		}
	})
	if modelErr != nil {
		return options{}, modelErr
	}
	if err := engine.Validate(); err != nil {
		return options{}, err
	}

	if opts.AdminToken == "" {
		opts.AdminToken = strings.TrimSpace(os.Getenv(adminTokenEnv))
	}
	if opts.Controller.InstanceID == "" {
		opts.Controller.InstanceID = uuid.NewString()
	}
	relayURL, err := relay.ResolveConnectURL(opts.EntryURL, opts.RelayBase, opts.Key, relay.RoleController)
	if err != nil {
		return options{}, err
	}
	opts.Controller.RelayURL = relayURL
	return opts, nil
}

// serve runs the controller and, when configured, the admin listener that
// carries pointer input. Each stops the other; a listener failure is returned.
func serve(ctx context.Context, c *controller.Controller, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var adminDone chan error
	if opts.AdminListen != "" {
		var guard []server.Option
		if opts.AdminToken != "" {
			guard = append(guard, server.WithAuth(auth.StaticToken(opts.AdminToken)))
		}
		admin := server.New(c, opts.AdminListen, opts.CorsOrigins, guard...)
		adminDone = make(chan error, 1)
		go func() {
			err := admin.Run(ctx)
			if err != nil {
				log.Error().Err(err).Str("addr", opts.AdminListen).Msg("controlctl admin listener failed")
				cancel()
			}
			adminDone <- err
		}()
	} else {
		log.Warn().Msg("controlctl running without admin_listen; no pointer input can reach the engine")
	}

	start := time.Now()
	err := c.Run(ctx)
	cancel()
	if adminDone != nil {
		if adminErr := <-adminDone; err == nil {
			err = adminErr
		}
	}
	log.Info().Dur("uptime", time.Since(start)).Msg("controlctl stopped")
	return err
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
