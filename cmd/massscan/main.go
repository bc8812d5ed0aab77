package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/CZERTAINLY/massscan/internal/log"
	"github.com/CZERTAINLY/massscan/internal/model"
	"github.com/CZERTAINLY/massscan/internal/service"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configEnv  = "MASSSCANCONFIG"
	configName = "massscan.yaml"
	envPrefix  = "MASSSCAN"
)

var (
	userConfigPath string // /default/config/path/massscan on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	errLog         io.Closer

	// flags and MASSSCAN_* environment variables
	v = viper.New()
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "massscan")
}

func main() {
	// root flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file to load - default is "+configName+" in current directory or in "+userConfigPath)
	flags.Bool("verbose", false, "verbose logging")
	flags.StringP("file", "f", "", "input CSV file with the URLs to scan")
	flags.StringP("name-email", "k", "", `requester identity in the form "Name:email"`)
	flags.IntP("concurrency", "c", 0, "number of parallel scans, overrides the Crawl Concurrency column")
	flags.String("output-dir", "", "directory for summary.csv and details.csv")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initMassscan
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		if errLog != nil {
			_ = errLog.Close()
		}
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("massscan failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "massscan",
	Short:        "Runs accessibility scans of many websites in parallel",
	SilenceUsage: true,
	RunE:         doRun,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run command reads the input file and scans every URL in it",
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a massscan",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("massscan: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("massscan: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	inputPath := v.GetString("file")
	if inputPath == "" {
		return errors.New("input file is required: use -f")
	}
	identity, err := model.ParseIdentity(v.GetString("name-email"))
	if err != nil {
		return err
	}

	attrs := slog.Group("massscan",
		slog.String("cmd", cmd.Name()),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	return service.Run(ctx, service.Options{
		InputPath:   inputPath,
		Identity:    identity,
		Concurrency: v.GetInt("concurrency"),
		Config:      config,
		Stdout:      cmd.OutOrStdout(),
	})
}

func initMassscan(cmd *cobra.Command, _ []string) error {
	flagConfigFilePath := v.GetString("config")
	if envConfig, ok := os.LookupEnv(configEnv); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{".", userConfigPath} {
			path := filepath.Join(d, configName)
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig(context.Background())
		configPath = filepath.Join(userConfigPath, configName)
		if err := storeConfig(configPath, config); err != nil {
			return err
		}
	} else {
		var err error
		config, err = loadConfig(configPath)
		if err != nil {
			return err
		}
	}

	// flags have a precedence over config file
	if v.GetBool("verbose") {
		if config.Service == nil {
			config.Service = &model.Service{}
		}
		verbose := true
		config.Service.Verbose = &verbose
	}
	if dir := v.GetString("output-dir"); dir != "" {
		if config.Report == nil {
			config.Report = &model.Report{}
		}
		config.Report.Dir = &dir
	}

	// initialize logging
	var errWriter io.Writer
	if path := config.ErrorLog(); path != "" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening error log: %w", err)
		}
		errLog = f
		errWriter = f
	}
	slog.SetDefault(log.New(os.Stderr, config.Verbose(), errWriter))

	slog.Debug("massscan run", "configPath", configPath)
	slog.Debug("massscan run", "config", config)
	return nil
}

func loadConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	config, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid config", d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return config, nil
}

func storeConfig(path string, config model.Config) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
