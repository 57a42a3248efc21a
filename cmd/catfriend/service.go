package main

import (
	"fmt"
	"log"

	"github.com/kardianos/service"

	"github.com/ohjames/catfriend/config"
	"github.com/ohjames/catfriend/internal/supervise"
)

var serviceConfig = &service.Config{
	Name:        "catfriend",
	DisplayName: "catfriend mail watcher",
	Description: "Watches mail accounts and raises desktop alerts on new mail",
}

// serviceArgs rebuilds the command line the service manager should use
// when it launches us, carrying the operator's flags over.
func serviceArgs() []string {
	args := []string{"-service", "run"}
	if *configFile != "" {
		args = append(args, "-config", *configFile)
	}
	if *workMode {
		args = append(args, "-work")
	}
	if *verbose {
		args = append(args, "-verbose")
	}
	return args
}

// catfriendService adapts the supervised run to the service manager's
// Start/Stop lifecycle.
type catfriendService struct {
	accounts []config.Account
	rt       config.Runtime
	sup      *supervise.Supervisor
	done     chan struct{}
}

// Start implements service.Interface. It must not block.
func (s *catfriendService) Start(svc service.Service) error {
	go func() {
		runSupervised(s.sup, s.accounts, s.rt)
		close(s.done)
	}()
	return nil
}

// Stop implements service.Interface. The service manager's stop
// request feeds the same one-shot trigger as every other shutdown
// source; returning only after teardown finished keeps the manager
// from killing us mid-join.
func (s *catfriendService) Stop(svc service.Service) error {
	log.Println("catfriend service stopping")
	s.sup.Shutdown()
	<-s.done
	return nil
}

// runService handles the -service flag: control actions go to the
// service manager, "run" executes under it.
func runService(action string, accounts []config.Account, rt config.Runtime) {
	prg := &catfriendService{
		accounts: accounts,
		rt:       rt,
		sup:      supervise.New(),
		done:     make(chan struct{}),
	}
	serviceConfig.Arguments = serviceArgs()
	svc, err := service.New(prg, serviceConfig)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch action {
	case "run":
		// Started by the service manager; log to the per-user file
		// since there is no console.
		if err := setupFileLogging(); err != nil {
			log.Printf("Failed to set up file logging: %v", err)
		}
		if err := svc.Run(); err != nil {
			log.Fatalf("Failed to run service: %v", err)
		}
	case "install", "uninstall", "start", "stop":
		if err := service.Control(svc, action); err != nil {
			log.Fatalf("Failed to %s service: %v", action, err)
		}
		fmt.Printf("Service %s action successful.\n", action)
	default:
		log.Fatalf("Unknown service action %q (want install, uninstall, start, stop or run)", action)
	}
}
