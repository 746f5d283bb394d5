// main package for the vietforeign-service
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/config"
	"github.com/kardianos/service"
)

const (
	serviceName        = "vietforeign-service"
	serviceDisplayName = "Vietforeign Service"
	serviceDescription = "Transcribes Vietnamese recordings, translates them and re-voices the translation."
)

// ErrUnknownAction indicates a service control action kardianos/service does not know.
var ErrUnknownAction = errors.New("unknown service action")

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func run(args []string) error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "vietforeign-service-bootstrap.log")
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	svcConfig := &service.Config{
		Name:        serviceName,
		DisplayName: serviceDisplayName,
		Description: serviceDescription,
	}

	// 2. Service control actions need no configuration.
	if len(args) > 0 {
		return control(svcConfig, args[0], bootstrapLog)
	}

	// 3. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 4. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "vietforeign-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	prg := newProgram(cfg, finalLog)

	svc, err := service.New(prg, svcConfig)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	finalLog.System("Vietforeign-Service initialized. Listening for requests under subject prefix: %s",
		cfg.NATS.SubjectPrefix)

	err = svc.Run()
	if err != nil {
		return fmt.Errorf("service stopped with error: %w", err)
	}

	return prg.Err()
}

// control runs one of the install, uninstall, start, stop or restart actions.
func control(svcConfig *service.Config, action string, log *logger.Logger) error {
	if !isControlAction(action) {
		return fmt.Errorf("%w: '%s' (valid: %v)", ErrUnknownAction, action, service.ControlAction)
	}

	svc, err := service.New(newProgram(nil, log), svcConfig)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	err = service.Control(svc, action)
	if err != nil {
		return fmt.Errorf("service %s failed: %w", action, err)
	}

	log.Info("Service action %s completed.", action)

	return nil
}

func isControlAction(action string) bool {
	for _, known := range service.ControlAction {
		if known == action {
			return true
		}
	}

	return false
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
