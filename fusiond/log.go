package fusiond

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Anmol-Dhiman/stellar-fusionX/auction"
	"github.com/Anmol-Dhiman/stellar-fusionX/chain"
	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb"
	"github.com/Anmol-Dhiman/stellar-fusionX/notifications"
	"github.com/Anmol-Dhiman/stellar-fusionX/order"
	"github.com/Anmol-Dhiman/stellar-fusionX/solvers"
	btclogv1 "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
	"github.com/jrick/logrotate/rotator"
	"github.com/lightningnetwork/lnd/build"
)

// Subsystem defines the sub system name of this package.
const Subsystem = "FUSD"

var (
	logWriter = NewLogWriter()
	log       btclog.Logger
)

func init() {
	log = build.NewSubLogger(Subsystem, nil)
}

// LogWriter writes the output of all subsystems to stdout and, once the
// rotator is initialized, to a rotated log file.
type LogWriter struct {
	handler btclog.Handler

	rotator *rotator.Rotator
	pipe    *io.PipeWriter

	loggers map[string]btclog.Logger
	mu      sync.Mutex
}

// NewLogWriter creates a log writer printing to stdout.
func NewLogWriter() *LogWriter {
	w := &LogWriter{
		loggers: make(map[string]btclog.Logger),
	}
	w.handler = btclog.NewDefaultHandler(w)

	return w
}

// Write writes to stdout and the log rotator.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)

	if w.pipe != nil {
		w.pipe.Write(b)
	}

	return len(b), nil
}

// InitLogRotator starts writing log output to the file, rotating it once it
// exceeds maxSizeMB.
func (w *LogWriter) InitLogRotator(logFile string, maxSizeMB,
	maxFiles int) error {

	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(logFile, int64(maxSizeMB*1024), false, maxFiles)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		_ = r.Run(pr)
	}()

	w.rotator = r
	w.pipe = pw

	return nil
}

// Close stops writing to the log file.
func (w *LogWriter) Close() error {
	if w.pipe != nil {
		_ = w.pipe.Close()
	}
	if w.rotator != nil {
		return w.rotator.Close()
	}

	return nil
}

// RegisterSubLogger creates the logger of the subsystem and hands it to the
// package.
func (w *LogWriter) RegisterSubLogger(subsystem string,
	useLogger func(btclog.Logger)) btclog.Logger {

	w.mu.Lock()
	defer w.mu.Unlock()

	logger := btclog.NewSLogger(w.handler.SubSystem(subsystem))
	w.loggers[subsystem] = logger

	if useLogger != nil {
		useLogger(logger)
	}

	return logger
}

// SupportedSubsystems returns the sorted names of all registered
// subsystems.
func (w *LogWriter) SupportedSubsystems() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	subsystems := make([]string, 0, len(w.loggers))
	for s := range w.loggers {
		subsystems = append(subsystems, s)
	}
	sort.Strings(subsystems)

	return subsystems
}

// SetLogLevels sets the level of all subsystems.
func (w *LogWriter) SetLogLevels(level btclogv1.Level) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, logger := range w.loggers {
		logger.SetLevel(level)
	}
}

// ParseAndSetDebugLevels applies a debug level spec of either a single level
// for all subsystems or a comma separated list of subsystem=level pairs.
func (w *LogWriter) ParseAndSetDebugLevels(spec string) error {
	// A single level applies to everything.
	if !strings.Contains(spec, ",") && !strings.Contains(spec, "=") {
		level, ok := btclog.LevelFromString(spec)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", spec)
		}

		w.SetLogLevels(level)

		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, pair := range strings.Split(spec, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level contains "+
				"an invalid subsystem/level pair [%v]", pair)
		}

		subsystem, levelStr := fields[0], fields[1]
		logger, ok := w.loggers[subsystem]
		if !ok {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid", subsystem)
		}

		level, ok := btclog.LevelFromString(levelStr)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", levelStr)
		}

		logger.SetLevel(level)
	}

	return nil
}

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *LogWriter) {
	log = root.RegisterSubLogger(Subsystem, nil)

	root.RegisterSubLogger(fsm.Subsystem, fsm.UseLogger)
	root.RegisterSubLogger(escrow.Subsystem, escrow.UseLogger)
	root.RegisterSubLogger(order.Subsystem, order.UseLogger)
	root.RegisterSubLogger(auction.Subsystem, auction.UseLogger)
	root.RegisterSubLogger(solvers.Subsystem, solvers.UseLogger)
	root.RegisterSubLogger(
		notifications.Subsystem, notifications.UseLogger,
	)
	root.RegisterSubLogger(chain.Subsystem, chain.UseLogger)
	root.RegisterSubLogger(fusiondb.Subsystem, fusiondb.UseLogger)
}
