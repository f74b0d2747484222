// Management console for the PII masking client.
package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	piimask "github.com/Gokulkiran418/aws-textract-mask-pii"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"
)

// EnvVarPrefix holds environment variables prefix related to application.
const EnvVarPrefix = "PIIMASK_"

func main() {

	// .env must be loaded before flag parsing: EnvVar-backed flags read
	// the environment inside app.Run.
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Name = "piimask"
	app.Usage = "PII masking client"
	app.Version = BuildNumber
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:   "debug, d",
			Usage:  "debug mode activation",
			EnvVar: EnvVarPrefix + "DEBUG",
		},
		cli.StringFlag{
			Name:   "pl",
			Usage:  "pprof HTTP listener",
			EnvVar: EnvVarPrefix + "PPROF_LISTENER",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:    "mask",
			Aliases: []string{"m"},
			Usage:   "submit one image and save the masked result",

			Action: mask,
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:   "file, f",
					Usage:  "image to mask (png or jpeg)",
					EnvVar: EnvVarPrefix + "FILE",
				},
			}, clientFlags()...),
		},
		{
			Name:    "shell",
			Aliases: []string{"sh"},
			Usage:   "interactive masking session",

			Action: shell,
			Flags:  clientFlags(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// clientFlags are shared by every command that talks to the service.
func clientFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  "piimask.yaml",
			Usage:  "client config file",
			EnvVar: EnvVarPrefix + "CONFIG",
		},
		cli.StringFlag{
			Name:   "endpoint, e",
			Usage:  "masking service upload URL",
			EnvVar: EnvVarPrefix + "ENDPOINT",
		},
		cli.StringFlag{
			Name:   "style, s",
			Usage:  "masking style: rectangle or blur",
			EnvVar: EnvVarPrefix + "STYLE",
		},
		cli.StringFlag{
			Name:   "out, o",
			Usage:  "directory masked_image.png is saved into",
			EnvVar: EnvVarPrefix + "OUT",
		},
		cli.DurationFlag{
			Name:   "timeout, t",
			Usage:  "request timeout",
			EnvVar: EnvVarPrefix + "TIMEOUT",
		},
	}
}

// buildConfig merges the config file with flag overrides.
func buildConfig(c *cli.Context) *piimask.Config {
	cfg := piimask.NewConfig(c.String("config"))
	if v := c.String("endpoint"); v != "" {
		cfg.Service.Endpoint = v
	}
	if v := c.Duration("timeout"); v > 0 {
		cfg.Service.Timeout = v
	}
	if v := c.String("style"); v != "" {
		cfg.Mask.Style = v
	}
	if v := c.String("out"); v != "" {
		cfg.Download.Dir = v
	}
	return cfg
}

// newLogger prepares the root logger the way every command uses it.
// Interactive commands route structured logs to stderr in console form so
// they do not tangle with the prompt.
func newLogger(c *cli.Context, console bool) zerolog.Logger {

	zerolog.TimeFieldFormat = "20060102T150405.999Z07:00"
	zerolog.TimestampFieldName = "t"
	zerolog.MessageFieldName = "msg"
	zerolog.LevelFieldName = "lvl"

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.GlobalBool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if console {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// startPprof activates the runtime profiling listener when requested.
func startPprof(c *cli.Context, logger zerolog.Logger) {
	if !c.GlobalIsSet("pl") {
		return
	}
	go func(listen string) {
		logger.Info().Str("pl", listen).Msg("start pprof http listener")
		if err := http.ListenAndServe(listen, nil); err != nil {
			logger.Error().Str("errmsg", err.Error()).Msg("pprof listener starting failed")
		}
	}(c.GlobalString("pl"))
}

// signalContext returns a context cancelled by SIGINT. Cancelling ends the
// session; a request already on the wire is never aborted mid-flight.
func signalContext(logger zerolog.Logger) (context.Context, context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stop
		logger.Info().Msg("signal SIGINT captured")
		cancel()
	}()
	return ctx, cancel
}

// mask submits a single file and downloads the result: the whole workflow
// in one run.
func mask(c *cli.Context) error {

	logger := newLogger(c, false)
	logger.Info().Str("version", BuildNumber).Msg("piimask started")

	cfg := buildConfig(c)

	path := c.String("file")
	if path == "" && c.NArg() > 0 {
		path = c.Args().First()
	}
	if path == "" {
		err := errors.New("no input file: use --file or pass a path")
		logger.Error().Str("errmsg", err.Error()).Msg("nothing to submit")
		return err
	}

	logger.Info().
		Str("file", path).
		Str("style", cfg.Mask.Style).
		Str("endpoint", cfg.Service.Endpoint).
		Str("out", cfg.Download.Dir).
		Msg("launching params")

	startPprof(c, logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	svc := piimask.NewMaskService(logger, cfg.Service.Endpoint)
	svc.SetTimeout(cfg.Service.Timeout)

	up := piimask.NewUploader(logger, svc)
	defer up.Close()
	pres := piimask.NewDiskPresenter(logger, cfg.Download.Dir)

	if err := up.SelectMaskStyle(piimask.MaskStyle(cfg.Mask.Style)); err != nil {
		logger.Error().Str("errmsg", err.Error()).Msg("invalid mask style")
		return err
	}

	file, err := piimask.LoadFile(path)
	if err != nil {
		logger.Error().Str("errmsg", err.Error()).Msg("input file open failed")
		return err
	}

	started := time.Now()
	st := <-up.Submit(ctx, file)
	if st.State != piimask.StateSucceeded {
		logger.Error().Str("errmsg", st.Message).Msg("masking failed")
		return errors.New(st.Message)
	}

	pres.Present(st.Result)
	saved, err := pres.Download()
	if err != nil {
		logger.Error().Str("errmsg", err.Error()).Msg("masked image save failed")
		return err
	}

	logger.Info().Str("path", saved).Str("dur", time.Since(started).String()).Msg("completed")
	return nil
}
