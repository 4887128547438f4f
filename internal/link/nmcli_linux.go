//go:build linux

package link

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vishvananda/netlink"
)

// apConnection is the NetworkManager profile name used for the hotspot.
const apConnection = "relayd-ap"

// apCacheTTL bounds how often the active connection list is queried.
const apCacheTTL = time.Second

// NMRadio drives a wireless interface through NetworkManager. Link status
// and the hardware address come from netlink; joins and the hotspot go
// through nmcli. The hotspot runs on apIface, which defaults to the station
// interface; a single interface cannot serve both at once.
type NMRadio struct {
	iface   string
	apIface string

	mu          sync.Mutex
	apActive    bool
	apCheckedAt time.Time
}

// NewNMRadio checks that the interfaces exist and nmcli is installed. An
// empty apIface puts the hotspot on iface.
func NewNMRadio(iface, apIface string) (*NMRadio, error) {
	if _, err := exec.LookPath("nmcli"); err != nil {
		return nil, fmt.Errorf("nmcli not found: %w", err)
	}
	if apIface == "" {
		apIface = iface
	}
	for _, name := range []string{iface, apIface} {
		if _, err := netlink.LinkByName(name); err != nil {
			return nil, fmt.Errorf("interface %s: %w", name, err)
		}
	}
	return &NMRadio{iface: iface, apIface: apIface}, nil
}

// Join implements Radio. nmcli blocks until activation succeeds or fails,
// bounded by the context deadline.
func (r *NMRadio) Join(ctx context.Context, ssid, passphrase string) error {
	args := []string{"--wait", waitSeconds(ctx), "device", "wifi", "connect", ssid, "ifname", r.iface}
	if passphrase != "" {
		args = append(args, "password", passphrase)
	}
	if _, err := r.nmcli(ctx, args...); err != nil {
		return err
	}
	return nil
}

// Connected implements Radio. The station is connected when the interface
// is up with an IPv4 address. On a shared interface the hotspot address
// does not count.
func (r *NMRadio) Connected() bool {
	link, err := netlink.LinkByName(r.iface)
	if err != nil {
		return false
	}
	attrs := link.Attrs()
	if attrs.OperState != netlink.OperUp && attrs.OperState != netlink.OperUnknown {
		return false
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil || len(addrs) == 0 {
		return false
	}
	if r.apIface != r.iface {
		return true
	}
	return !r.APActive()
}

// StartAP implements Radio.
func (r *NMRadio) StartAP(ssid, password string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	args := []string{"device", "wifi", "hotspot", "ifname", r.apIface, "con-name", apConnection, "ssid", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	_, err := r.nmcli(ctx, args...)
	r.invalidateAP()
	return err
}

// StopAP implements Radio.
func (r *NMRadio) StopAP() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.nmcli(ctx, "connection", "down", apConnection)
	r.invalidateAP()
	return err
}

// APActive implements Radio. The result is cached briefly since the loop
// asks several times per tick.
func (r *NMRadio) APActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.apCheckedAt.IsZero() && time.Since(r.apCheckedAt) < apCacheTTL {
		return r.apActive
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.apActive = false
	r.apCheckedAt = time.Now()

	out, err := r.nmcli(ctx, "-t", "-f", "NAME", "connection", "show", "--active")
	if err != nil {
		log.Debug().Err(err).Msg("Failed to list active connections")
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == apConnection {
			r.apActive = true
			break
		}
	}
	return r.apActive
}

func (r *NMRadio) invalidateAP() {
	r.mu.Lock()
	r.apCheckedAt = time.Time{}
	r.mu.Unlock()
}

// ConcurrentAP implements Radio.
func (r *NMRadio) ConcurrentAP() bool {
	return r.apIface != r.iface
}

// HardwareAddr implements Radio.
func (r *NMRadio) HardwareAddr() string {
	link, err := netlink.LinkByName(r.iface)
	if err != nil {
		log.Warn().Err(err).Str("interface", r.iface).Msg("Failed to read interface MAC")
		return ""
	}
	return strings.ToUpper(link.Attrs().HardwareAddr.String())
}

// IPAddr implements Radio. The hotspot address is reported while the
// station has none.
func (r *NMRadio) IPAddr() string {
	if ip := interfaceIPv4(r.iface); ip != "" || r.apIface == r.iface {
		return ip
	}
	return interfaceIPv4(r.apIface)
}

func interfaceIPv4(name string) string {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return ""
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].IP.String()
}

func (r *NMRadio) nmcli(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "nmcli", args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return "", fmt.Errorf("nmcli %s: %w", args[0], err)
		}
		return "", fmt.Errorf("nmcli %s: %w: %s", args[0], err, msg)
	}
	return string(out), nil
}

func waitSeconds(ctx context.Context) string {
	deadline, ok := ctx.Deadline()
	if !ok {
		return "30"
	}
	secs := int(time.Until(deadline).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
