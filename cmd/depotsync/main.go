package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/galaxyproject/depotsync/cmd/cmdutils"
	"github.com/galaxyproject/depotsync/cmd/ledger"
	"github.com/galaxyproject/depotsync/cmd/mirror"
	"github.com/galaxyproject/depotsync/config"
	"github.com/galaxyproject/depotsync/internal/style"
	"github.com/galaxyproject/depotsync/internal/terminal"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/progress"
)

// version is set via ldflags during build
var version = "dev"

func main() {
	factory := cmdutils.NewFactory()
	rootCmd := newRootCmd(factory)

	termPreCheck := terminal.Detect(false, false)
	style.Init(termPreCheck.ColorEnabled)
	if helpTpl := style.HelpTemplate(); helpTpl != "" {
		rootCmd.SetUsageTemplate(helpTpl)
	}

	if err := rootCmd.Execute(); err != nil {
		termInfo := terminal.Detect(config.Global.NoColor, false)
		if termInfo.StderrIsTerminal && termInfo.ColorEnabled {
			fmt.Fprintln(os.Stderr, style.Error.Render("Error: "+err.Error()))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cmdutils.ExitCode(err))
	}
}

func newRootCmd(factory *cmdutils.Factory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "depotsync",
		Short:         "Mirror container images from a registry into a depot",
		SilenceUsage:  true,
		SilenceErrors: true, //prevent duplicate printing of errors
		Long: heredoc.Doc(`
			depotsync keeps a depot of converted container images in step with a
			source registry. Each run lists both sides, converts what the depot is
			missing, publishes it and records the outcome in a ledger.

			Find more information at:
			      https://github.com/galaxyproject/depotsync`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			termInfo := terminal.Detect(config.Global.NoColor, config.Global.Format == "json")
			style.Init(termInfo.ColorEnabled)
			factory.Reporter = func() progress.Reporter {
				return progress.NewAutoReporter(termInfo.ProgressEnabled && !config.Global.Verbose)
			}

			if err := setupLogging(os.Stderr); err != nil {
				return err
			}
			return initProfiling()
		},

		PersistentPostRunE: func(*cobra.Command, []string) error {
			return flushProfiling()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&config.Global.ConfigPath, "config", "c", "depotsync.yaml", "Path of the configuration file (YAML or TOML)")
	flags.StringVar(&config.Global.Format, "format", "table", "Format of the result (table|json)")
	flags.StringVar(&config.Global.LogFormat, "log-format", "console", "Format of the verbose log (console|json)")
	flags.BoolVarP(&config.Global.Verbose, "verbose", "v", false, "Enable verbose logging to stderr")
	flags.BoolVar(&config.Global.NoColor, "no-color", false, "Disable colour output (also respects NO_COLOR env)")
	addProfilingFlags(flags)

	if envVal := os.Getenv("DEPOTSYNC_CONFIG"); envVal != "" {
		config.Global.ConfigPath = envVal
	}

	rootCmd.AddCommand(mirror.GetRootCmd(factory))
	rootCmd.AddCommand(ledger.GetRootCmd(factory))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// setupLogging points the global logger at w. Without --verbose only errors
// are surfaced, through the terminal hook.
func setupLogging(w io.Writer) error {
	if !config.Global.Verbose {
		log.Logger = zerolog.New(io.Discard).Level(zerolog.ErrorLevel).Hook(types.ErrorHook{})
		return nil
	}
	switch config.Global.LogFormat {
	case "json":
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	case "console", "":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    config.Global.NoColor,
		}).With().Timestamp().Logger()
	default:
		return fmt.Errorf("unknown log format %q", config.Global.LogFormat)
	}
	return nil
}

// versionCmd returns the version command
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of depotsync",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("depotsync version %s\n", version)
			fmt.Printf("Built with %s\n", runtime.Version())
		},
	}
}

var (
	profileName   string
	profileOutput string
)

func addProfilingFlags(flags *pflag.FlagSet) {
	flags.StringVar(&profileName, "profile", "none",
		"Name of profile to capture. One of (none|cpu|heap|goroutine|threadcreate|block|mutex)")
	flags.StringVar(&profileOutput, "profile-output", "profile.pprof", "Name of the file to write the profile to")
}

func initProfiling() error {
	var (
		f   *os.File
		err error
	)
	switch profileName {
	case "none":
		return nil
	case "cpu":
		f, err = os.Create(profileOutput)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
	// Block and mutex profiles need a rate set to record anything. Sample all events.
	case "block":
		runtime.SetBlockProfileRate(1)
	case "mutex":
		runtime.SetMutexProfileFraction(1)
	default:
		if profile := pprof.Lookup(profileName); profile == nil {
			return fmt.Errorf("unknown profile '%s'", profileName)
		}
	}

	// flush on ctrl-c
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		_ = flushProfiling()
		if f != nil {
			f.Close()
		}
		os.Exit(1)
	}()

	return nil
}

func flushProfiling() error {
	switch profileName {
	case "none":
		return nil
	case "cpu":
		pprof.StopCPUProfile()
	case "heap":
		runtime.GC()
		fallthrough
	default:
		profile := pprof.Lookup(profileName)
		if profile == nil {
			return nil
		}
		f, err := os.Create(profileOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		return profile.WriteTo(f, 0)
	}
	return nil
}
