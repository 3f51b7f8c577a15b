// Command beacon-advertise publishes a single DNS-SD service on the
// local network until interrupted, then sends a goodbye and exits.
//
// Usage:
//
//	go run ./cmd/beacon-advertise -name "My Printer" -type _printer._tcp -port 515
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joshuafuller/beacon/discovery"
	"github.com/joshuafuller/beacon/internal/catalog"
)

func main() {
	instance := flag.String("name", "", "service instance name")
	serviceType := flag.String("type", "", "service type, e.g. _http._tcp")
	port := flag.Uint("port", 0, "service port")
	txt := flag.String("txt", "", "comma-separated key=value TXT pairs")
	flag.Parse()

	if *instance == "" || *serviceType == "" || *port == 0 {
		fmt.Fprintln(os.Stderr, "usage: beacon-advertise -name NAME -type _svc._tcp -port PORT [-txt k=v,k=v]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	addrs, err := localAddresses()
	if err != nil {
		logger.Error("failed to enumerate local addresses", "err", err)
		os.Exit(1)
	}

	profile := &catalog.ServiceProfile{
		InstanceName: *instance,
		ServiceName:  *serviceType,
		Port:         uint16(*port),
		Addresses:    addrs,
		TXT:          parseTXT(*txt),
	}

	svc := discovery.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start discovery service", "err", err)
		os.Exit(1)
	}
	defer func() { _ = svc.Stop() }()

	if err := svc.Advertise(ctx, profile); err != nil {
		logger.Error("advertise failed", "err", err)
		os.Exit(1)
	}
	if err := svc.Announce(ctx, profile); err != nil {
		logger.Warn("announce failed", "err", err)
	}

	logger.Info("advertising", "instance", profile.FullyQualifiedInstance())
	<-ctx.Done()

	logger.Info("shutting down, sending goodbye")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := svc.Unadvertise(shutdownCtx, profile); err != nil {
		logger.Warn("unadvertise failed", "err", err)
	}
}

func parseTXT(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func localAddresses() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		out = append(out, ipnet.IP)
	}
	return out, nil
}
