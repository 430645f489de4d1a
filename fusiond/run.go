package fusiond

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	fusionx "github.com/Anmol-Dhiman/stellar-fusionX"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/lncfg"
	"github.com/lightningnetwork/lnd/signal"
)

// Run starts the fusion daemon and blocks until it's shut down again.
func Run() error {
	config := DefaultConfig()

	// Parse command line flags.
	parser := flags.NewParser(&config, flags.Default)
	parser.SubcommandsOptional = true

	_, err := parser.Parse()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	}
	if err != nil {
		return err
	}

	// Parse ini file.
	fusionDir := lncfg.CleanAndExpandPath(config.FusionDir)
	configFile := getConfigPath(config, fusionDir)

	if err := flags.IniParse(configFile, &config); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return err
		}
	}

	// Parse command line flags again to restore flags overwritten by ini
	// parse.
	_, err = parser.Parse()
	if err != nil {
		return err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if config.ShowVersion {
		fmt.Println(appName, "version", fusionx.Version())
		os.Exit(0)
	}

	SetupLoggers(logWriter)

	// Special show command to list supported subsystems and exit.
	if config.DebugLevel == "show" {
		fmt.Printf("Supported subsystems: %v\n",
			logWriter.SupportedSubsystems())
		os.Exit(0)
	}

	// Validate our config before we proceed.
	if err := Validate(&config); err != nil {
		return err
	}

	// Initialize logging at the default logging level.
	err = logWriter.InitLogRotator(
		filepath.Join(config.LogDir, defaultLogFilename),
		config.MaxLogFileSize, config.MaxLogFiles,
	)
	if err != nil {
		return err
	}
	defer logWriter.Close()

	if err := logWriter.ParseAndSetDebugLevels(config.DebugLevel); err != nil {
		return err
	}

	// Print the version before executing either primary directive.
	log.Infof("Version: %v", fusionx.Version())

	// Execute command.
	if parser.Active != nil && parser.Active.Name == "view" {
		return view(&config)
	}
	if parser.Active != nil {
		return fmt.Errorf("unimplemented command %v",
			parser.Active.Name)
	}

	interceptor, err := signal.Intercept()
	if err != nil {
		return err
	}

	daemon, err := New(&config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-interceptor.ShutdownChannel()
		log.Infof("Received shutdown request.")
		cancel()
	}()

	return daemon.Run(ctx)
}

// getConfigPath gets our config path based on the values that are set in our
// config.
func getConfigPath(cfg Config, fusionDir string) string {
	// If the config file path provided by the user is set, then we just
	// use this value.
	if cfg.ConfigFile != defaultConfigFile {
		return lncfg.CleanAndExpandPath(cfg.ConfigFile)
	}

	// If the user has set a fusion directory that is different to the
	// default we will use this directory as the location of our config
	// file. We do not namespace by network, because this is a custom dir.
	if fusionDir != FusionDirBase {
		return filepath.Join(fusionDir, defaultConfigFilename)
	}

	// Otherwise, we are using our default fusion directory, and the user
	// did not set a config file path. We use our default dir, namespaced
	// by network.
	return filepath.Join(fusionDir, cfg.Network, defaultConfigFilename)
}
