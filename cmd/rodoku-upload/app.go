package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
	"github.com/rodoku-audio/rodoku-tools/audio"
	"github.com/rodoku-audio/rodoku-tools/chunkuploader"
	"github.com/rodoku-audio/rodoku-tools/config"
	"github.com/rodoku-audio/rodoku-tools/verify"
	"github.com/rodoku-audio/rodoku-tools/wavestk"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// outcome is one line of the JSON output.
type outcome struct {
	Path         string                      `json:"path"`
	Size         int64                       `json:"size,omitempty"`
	Type         string                      `json:"type,omitempty"`
	Result       *chunkuploader.UploadResult `json:"result,omitempty"`
	Verification *verify.Report              `json:"verification,omitempty"`
	Error        string                      `json:"error,omitempty"`
}

type app struct {
	envRepo  env.Repository
	logger   log.Logger
	uploader wavestk.Uploader
	out      io.Writer
}

func newApp(envRepo env.Repository, logger log.Logger, uploader wavestk.Uploader, out io.Writer) *app {
	return &app{
		envRepo:  envRepo,
		logger:   logger,
		uploader: uploader,
		out:      out,
	}
}

func (a *app) run(ctx context.Context, args []string) int {
	flags := flag.NewFlagSet("rodoku-upload", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	envFile := flags.String("env", "", "read settings from this .env file (default: ./.env when present)")
	verifyFlag := flags.Bool("verify", false, "download every uploaded file and compare it with the local copy")
	debug := flags.Bool("debug", false, "enable debug logs")
	jobs := flags.Int("jobs", 3, "number of files uploaded at the same time")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			a.printUsage(flags)
			return exitOK
		}
		a.logger.Errorf("%s", err)
		a.printUsage(flags)
		return exitUsage
	}
	if flags.NArg() == 0 {
		a.logger.Errorf("No audio files given")
		a.printUsage(flags)
		return exitUsage
	}
	if *jobs < 1 {
		*jobs = 1
	}

	dotEnv, required := ".env", false
	if *envFile != "" {
		dotEnv, required = *envFile, true
	}
	if err := config.LoadDotEnv(a.envRepo, dotEnv, required); err != nil {
		a.logger.Errorf("%s", err)
		return exitUsage
	}

	cfg, err := config.Load(a.envRepo)
	if err != nil {
		a.logger.Errorf("Invalid configuration: %s", err)
		return exitUsage
	}
	cfg.Verify = cfg.Verify || *verifyFlag
	cfg.Debug = cfg.Debug || *debug
	a.logger.EnableDebugLog(cfg.Debug)
	a.logger.Debugf("Config: %s", cfg)

	collector := audio.NewCollector(pathutil.NewPathModifier(), pathutil.NewPathChecker(), a.logger)
	paths, err := collector.Collect(flags.Args())
	if err != nil {
		a.logger.Errorf("Failed to collect audio files: %s", err)
		return exitUsage
	}
	if len(paths) == 0 {
		a.logger.Errorf("No audio files found")
		return exitFailure
	}
	a.logger.Infof("Uploading %d file(s) to %s", len(paths), cfg.APIBaseURL)

	outcomes := make([]outcome, len(paths))
	sem := make(chan struct{}, *jobs)
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = a.process(ctx, cfg, path)
		}(i, path)
	}
	wg.Wait()

	encoder := json.NewEncoder(a.out)
	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
		if err := encoder.Encode(o); err != nil {
			a.logger.Errorf("Failed to write result: %s", err)
			return exitFailure
		}
	}

	if failed > 0 {
		a.logger.Errorf("%d of %d upload(s) failed", failed, len(outcomes))
		return exitFailure
	}
	a.logger.Donef("All %d upload(s) succeeded", len(outcomes))
	return exitOK
}

func (a *app) process(ctx context.Context, cfg config.Config, path string) outcome {
	o := outcome{Path: path}

	file, err := audio.Open(path)
	if err != nil {
		o.Error = err.Error()
		a.logger.Errorf("%s: %s", path, err)
		return o
	}
	defer func() {
		if err := file.Close(); err != nil {
			a.logger.Warnf("Failed to close %s: %s", path, err)
		}
	}()
	o.Size, o.Type = file.Size, file.Type

	if err := audio.Validate(file.File, cfg.MaxAudioSize); err != nil {
		o.Error = err.Error()
		a.logger.Errorf("%s: %s", file.Name, err)
		return o
	}

	a.logger.Infof("%s (%s, %s)", file.Name, file.Type, units.HumanSize(float64(file.Size)))
	result, err := a.uploader.Upload(ctx, wavestk.UploadParams{
		APIBaseURL:        cfg.APIBaseURL,
		SessionCookieName: cfg.SessionCookieName,
		SessionCookie:     string(cfg.SessionCookie),
		File:              file.File,
		OnProgress:        a.progressPrinter(file.Name),
		Config:            chunkuploader.Config{Statuses: chunkuploader.StatusesFor(cfg.Language)},
	}, a.logger)
	if err != nil {
		o.Error = err.Error()
		var uploadErr *chunkuploader.UploadError
		if errors.As(err, &uploadErr) {
			a.logger.Errorf("%s: failed while %s (session %s): %s", file.Name, uploadErr.State, uploadErr.SessionID, uploadErr.Err)
		} else {
			a.logger.Errorf("%s: %s", file.Name, err)
		}
		return o
	}
	o.Result = &result
	a.logger.Donef("%s: %s", file.Name, result.URL)

	if cfg.Verify {
		report, err := verify.NewVerifier(a.logger).Verify(ctx, result, file.File)
		o.Verification = &report
		if err != nil {
			o.Error = fmt.Sprintf("verification failed: %s", err)
			a.logger.Errorf("%s: %s", file.Name, o.Error)
			return o
		}
		a.logger.Donef("%s: verified (sha256 %s)", file.Name, report.RemoteChecksum)
	}

	return o
}

func (a *app) printUsage(flags *flag.FlagSet) {
	a.logger.Printf("Usage: rodoku-upload [-env file] [-verify] [-debug] [-jobs n] <path|glob>...")
	flags.VisitAll(func(f *flag.Flag) {
		a.logger.Printf("  -%s\t%s (default %q)", f.Name, f.Usage, f.DefValue)
	})
}

func (a *app) progressPrinter(name string) chunkuploader.ProgressFunc {
	return func(percent float64, status string) {
		a.logger.Printf("[%5.1f%%] %s: %s", percent, name, status)
	}
}
