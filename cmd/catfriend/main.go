package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ohjames/catfriend/config"
	"github.com/ohjames/catfriend/internal/control"
	"github.com/ohjames/catfriend/internal/notify"
	"github.com/ohjames/catfriend/internal/supervise"
	"github.com/ohjames/catfriend/internal/watch"
)

// Global flags for application configuration
var (
	configFile = flag.String("config", "", "Path to config file (default ~/.catfriend)")
	foreground = flag.Bool("fg", false, "Run in the foreground instead of detaching")
	workMode   = flag.Bool("work", false, "Also watch accounts flagged as work accounts")
	verbose    = flag.Bool("verbose", false, "Log every check cycle")
	stopFlag   = flag.Bool("stop", false, "Ask a running instance to shut down and exit")
	svcAction  = flag.String("service", "", "Manage the system service: install, uninstall, start, stop or run")
	isDaemon   = flag.Bool("daemon", false, "Internal use: indicates process is a daemon child")
)

func main() {
	flag.Parse()

	if *stopFlag {
		os.Exit(runStop())
	}

	if *isDaemon {
		// A daemon child's stdout/stderr may already be detached, so
		// redirect log.* to a file before anything else can log.
		setupFileLoggingAndExitOnFailure()
		log.Println("catfriend daemon process initialised with file logging")
	}

	accounts, globals, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	accounts = config.Filter(accounts, *workMode)
	if len(accounts) == 0 {
		fmt.Fprintln(os.Stderr, "no accounts to watch (none configured, or all are work accounts)")
		os.Exit(1)
	}

	rt := config.Runtime{
		Verbose:       *verbose,
		NotifyTimeout: globals.NotifyTimeout,
	}

	if *svcAction != "" {
		runService(*svcAction, accounts, rt)
		return
	}

	if !*foreground && !*isDaemon {
		runInBackground()
		return
	}

	sup := supervise.New()

	// Operator interrupt stops everything immediately; watchers tear
	// their connections down rather than finishing the poll cycle.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("interrupted, stopping all watchers")
		sup.Shutdown()
	}()

	os.Exit(runSupervised(sup, accounts, rt))
}

// runSupervised builds the watcher set and the control endpoint and
// hands them to the supervisor. Returns the process exit status.
func runSupervised(sup *supervise.Supervisor, accounts []config.Account, rt config.Runtime) int {
	watchers := make([]supervise.Watcher, 0, len(accounts))
	for _, acc := range accounts {
		w := watch.New(acc, rt)
		notifyTimeout := acc.NotifyTimeout
		w.OnNewMail(func(id string, subjects []string) {
			title, message := notify.NewMail(id, subjects)
			if err := notify.Send(title, message, notifyTimeout); err != nil {
				log.Printf("[%s] notification failed: %v", id, err)
			}
		})
		watchers = append(watchers, w)
	}

	socketPath := rt.SocketPath
	if socketPath == "" {
		socketPath = control.DefaultSocketPath()
	}
	ctl := control.NewServer(socketPath)

	log.Printf("watching %d account(s)", len(watchers))
	if err := sup.Run(watchers, ctl); err != nil {
		log.Printf("error: %v", err)
		return 1
	}
	log.Println("shut down")
	return 0
}

// runStop implements the -stop path: a short-lived invocation that
// signals a running instance and reports what happened.
func runStop() int {
	if err := control.SendShutdown(control.DefaultSocketPath()); err != nil {
		if errors.Is(err, control.ErrNoServer) {
			fmt.Fprintln(os.Stderr, "could not send shutdown signal, no server running?")
		} else {
			fmt.Fprintf(os.Stderr, "could not send shutdown signal: %v\n", err)
		}
		return 1
	}
	fmt.Println("shutdown signal sent")
	return 0
}

func configPath() string {
	if *configFile != "" {
		return *configFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".catfriend"
	}
	return filepath.Join(home, ".catfriend")
}

// runInBackground relaunches the application as a detached daemon
// child and exits.
func runInBackground() {
	exePath, err := os.Executable()
	if err != nil {
		log.Fatalf("Failed to get executable path: %v", err)
	}

	logDir, err := appLogDir()
	if err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	args := []string{"-daemon"}
	if *configFile != "" {
		args = append(args, "-config", *configFile)
	}
	if *workMode {
		args = append(args, "-work")
	}
	if *verbose {
		args = append(args, "-verbose")
	}

	cmd := exec.Command(exePath, args...)

	// Capture output until the child switches to file logging itself.
	initLog := filepath.Join(logDir, "catfriend-daemon-init.log")
	f, err := os.OpenFile(initLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Failed to create initial daemon log file: %v", err)
	}
	defer f.Close()
	cmd.Stdout = f
	cmd.Stderr = f
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		log.Fatalf("Failed to start background process: %v", err)
	}

	fmt.Printf("catfriend started in the background (PID: %d)\n", cmd.Process.Pid)
	fmt.Printf("Logs can be found at: %s\n", filepath.Join(logDir, "catfriend.log"))
	fmt.Println("Use catfriend -stop to shut it down.")
	os.Exit(0)
}

// appLogDir returns the per-user log directory, creating it if needed.
func appLogDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	logDir := filepath.Join(configDir, "catfriend")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", err
	}
	return logDir, nil
}

// writeEmergencyLog writes to a predefined temporary file if primary
// logging setup fails. Last resort for daemon children whose stderr is
// already detached.
func writeEmergencyLog(message string) {
	emergencyLogPath := filepath.Join(os.TempDir(), "catfriend_daemon_startup_critical_error.txt")
	fullMessage := fmt.Sprintf("%s: %s\n", time.Now().Format(time.RFC3339Nano), message)
	f, err := os.OpenFile(emergencyLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		defer f.Close()
		_, _ = f.WriteString(fullMessage)
	}
}

// setupFileLogging redirects the standard logger to the per-user log
// file.
func setupFileLogging() error {
	logDir, err := appLogDir()
	if err != nil {
		return fmt.Errorf("log directory: %w", err)
	}
	logFile := filepath.Join(logDir, "catfriend.log")
	f, err := os.OpenFile(logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", logFile, err)
	}
	log.SetOutput(f)
	log.SetFlags(log.Ldate | log.Ltime)
	return nil
}

// setupFileLoggingAndExitOnFailure is called very early when the
// -daemon flag is set. On failure it writes an emergency log and exits.
func setupFileLoggingAndExitOnFailure() {
	if err := setupFileLogging(); err != nil {
		writeEmergencyLog(fmt.Sprintf("CRITICAL_ERROR: %v", err))
		os.Exit(1)
	}
}
