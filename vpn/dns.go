package vpn

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/vpn-verify/common"
)

const (
	resolvedBusName    = "org.freedesktop.resolve1"
	resolvedObjectPath = dbus.ObjectPath("/org/freedesktop/resolve1")
	resolvedFlushCache = "org.freedesktop.resolve1.Manager.FlushCaches"
)

// DNSFlushCommand returns the command that flushes the resolver cache on
// goos, or nil if none is known.
func DNSFlushCommand(goos string) []string {
	switch goos {
	case "windows":
		return []string{"ipconfig", "/flushdns"}
	case "linux":
		return []string{"resolvectl", "flush-caches"}
	case "darwin":
		return []string{"killall", "-HUP", "mDNSResponder"}
	default:
		return nil
	}
}

// dnsFlusher holds the two ways of flushing, replaced in tests.
type dnsFlusher struct {
	goos    string
	viaDBus func(ctx context.Context) error
	run     func(ctx context.Context, argv []string) error
}

// FlushDNS flushes the operating system's DNS cache. On Linux it asks
// systemd-resolved over the system bus first and falls back to resolvectl.
func FlushDNS(ctx context.Context) error {
	f := dnsFlusher{
		goos:    runtime.GOOS,
		viaDBus: flushResolvedDBus,
		run:     runCommand,
	}
	return f.flush(ctx)
}

func (f dnsFlusher) flush(ctx context.Context) error {
	common.LogInfo("Flushing DNS cache...")

	if f.goos == "linux" && f.viaDBus != nil {
		err := f.viaDBus(ctx)
		if err == nil {
			common.LogInfo("DNS cache flushed via systemd-resolved")
			return nil
		}
		common.LogDebug("systemd-resolved D-Bus flush failed: %v", err)
	}

	argv := DNSFlushCommand(f.goos)
	if argv == nil {
		return fmt.Errorf("no DNS flush command known for %s", f.goos)
	}
	if err := f.run(ctx, argv); err != nil {
		return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}

	common.LogInfo("DNS cache flushed successfully")
	return nil
}

func flushResolvedDBus(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return err
	}
	defer conn.Close()

	obj := conn.Object(resolvedBusName, resolvedObjectPath)
	return obj.CallWithContext(ctx, resolvedFlushCache, 0).Err
}

func runCommand(ctx context.Context, argv []string) error {
	output, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		if out := strings.TrimSpace(string(output)); out != "" {
			return fmt.Errorf("%w: %s", err, out)
		}
		return err
	}
	return nil
}
