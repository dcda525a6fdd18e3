package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"

	"sdgateway/core"
)

// serviceStopTimeout bounds how long Stop waits for the gateway to drain.
const serviceStopTimeout = 90 * time.Second

// program adapts the gateway to service.Interface.
type program struct {
	app  *app
	done chan struct{}
	err  error
}

// Start wires the gateway and serves in the background. It must not block.
func (p *program) Start(s service.Service) error {
	a, code := bootstrap(false)
	if a == nil {
		return fmt.Errorf("gateway failed to start (exit code %d)", code)
	}

	p.app = a
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.err = a.run()
	}()
	return nil
}

// Stop triggers a graceful shutdown and waits for it.
func (p *program) Stop(s service.Service) error {
	if p.app == nil {
		return nil
	}
	p.app.stop()

	select {
	case <-p.done:
		return p.err
	case <-time.After(serviceStopTimeout):
		return errors.New("timeout waiting for gateway to stop")
	}
}

// serviceConfig describes the OS service. The working directory is the
// one the install command ran in, so relative paths in .env and the
// profile keep resolving.
func serviceConfig() *service.Config {
	cfg := &service.Config{
		Name:        core.AppName,
		DisplayName: "Stable Diffusion Gateway",
		Description: "Serves txt2img, img2img and upscale requests from painting plugins against a Stable Diffusion webui",
		Arguments:   []string{"service", "run"},
		Option: service.KeyValue{
			"StartType": "automatic",
		},
	}
	if wd, err := os.Getwd(); err == nil {
		cfg.WorkingDirectory = wd
	}
	return cfg
}

// serviceActions are forwarded to service.Control.
var serviceActions = map[string]bool{
	"install":   true,
	"uninstall": true,
	"start":     true,
	"stop":      true,
	"restart":   true,
}

// handleServiceCommand handles "sdgateway service <action>". It returns
// false when args are not a service command.
func handleServiceCommand(args []string) (bool, error) {
	if len(args) < 2 || args[1] != "service" {
		return false, nil
	}
	if len(args) < 3 {
		printServiceUsage()
		return true, errors.New("missing service action")
	}

	action := args[2]
	if action == "help" || action == "-h" || action == "--help" {
		printServiceUsage()
		return true, nil
	}

	s, err := service.New(&program{}, serviceConfig())
	if err != nil {
		return true, fmt.Errorf("failed to create service: %w", err)
	}

	switch {
	case action == "run":
		return true, s.Run()
	case action == "status":
		status, err := s.Status()
		if err != nil {
			return true, fmt.Errorf("failed to get service status: %w", err)
		}
		fmt.Println(statusText(status))
		return true, nil
	case serviceActions[action]:
		if err := service.Control(s, action); err != nil {
			return true, fmt.Errorf("failed to %s service: %w", action, err)
		}
		fmt.Printf("Service %s: ok\n", action)
		return true, nil
	default:
		printServiceUsage()
		return true, fmt.Errorf("unknown service action %q", action)
	}
}

func statusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Service is running"
	case service.StatusStopped:
		return "Service is stopped"
	default:
		return "Service status unknown"
	}
}

func printServiceUsage() {
	fmt.Println("Usage: sdgateway service <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  install    Install the gateway as an OS service")
	fmt.Println("  uninstall  Remove the OS service")
	fmt.Println("  start      Start the service")
	fmt.Println("  stop       Stop the service")
	fmt.Println("  restart    Restart the service")
	fmt.Println("  status     Show the service status")
	fmt.Println("  run        Run under the service manager (used by install)")
	fmt.Println()
	fmt.Println("Run without arguments to start the gateway in the foreground.")
}
