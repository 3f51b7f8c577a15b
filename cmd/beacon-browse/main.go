// Command beacon-browse discovers DNS-SD services and instances on the
// local network and prints them as they're found.
//
// Usage:
//
//	go run ./cmd/beacon-browse -type _http._tcp
//	go run ./cmd/beacon-browse   # enumerate service types only
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joshuafuller/beacon/discovery"
)

func main() {
	serviceType := flag.String("type", "", "service type to browse, e.g. _http._tcp (default: enumerate all types)")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to listen before exiting")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	svc := discovery.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start discovery service", "err", err)
		os.Exit(1)
	}
	defer func() { _ = svc.Stop() }()

	svc.Subscribe(func(ev discovery.Event) {
		switch e := ev.(type) {
		case discovery.ServiceDiscovered:
			fmt.Printf("service type: %s\n", e.ServiceType)
		case discovery.ServiceInstanceDiscovered:
			fmt.Printf("instance:     %s\n", e.InstanceName)
		case discovery.ServiceInstanceShutdown:
			fmt.Printf("goodbye:      %s\n", e.InstanceName)
		}
	})

	runCtx, runCancel := context.WithTimeout(ctx, *timeout)
	defer runCancel()

	var err error
	if *serviceType == "" {
		err = svc.QueryAllServices(runCtx)
	} else {
		err = svc.QueryServiceInstances(runCtx, *serviceType, "")
	}
	if err != nil {
		logger.Error("query failed", "err", err)
		os.Exit(1)
	}

	<-runCtx.Done()
}
