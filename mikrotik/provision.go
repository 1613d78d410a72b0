package mikrotik

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Outcome string

const (
	Created Outcome = "created"
	Updated Outcome = "updated"
)

// HotspotUser is the subscriber credential pushed onto a router. Name is
// the device identifier (MAC address); the service window only ends up in
// the comment since hotspot users have no native expiry attribute.
type HotspotUser struct {
	Name     string
	Password string
	Profile  string

	ServiceStart  time.Time
	ServiceExpiry time.Time
}

func (u *HotspotUser) comment() string {
	return fmt.Sprintf("service %s to %s",
		u.ServiceStart.Format("2006-01-02 15:04"),
		u.ServiceExpiry.Format("2006-01-02 15:04"))
}

// Provisioner creates or updates subscriber credentials on routers. The
// command runner is swappable so provisioning logic is testable without a
// device.
type Provisioner struct {
	run func(ctx context.Context, creds Credentials, cmd string) (string, error)
}

func NewProvisioner() *Provisioner {
	return &Provisioner{run: RunCommand}
}

// NewProvisionerWithRunner is for tests and diagnostics.
func NewProvisionerWithRunner(run func(ctx context.Context, creds Credentials, cmd string) (string, error)) *Provisioner {
	return &Provisioner{run: run}
}

// Provision converges the router to "credential exists with this password",
// idempotent per user name: absent users are added, existing ones get their
// password and comment overwritten. Repeated calls after partial failures
// are safe.
func (p *Provisioner) Provision(ctx context.Context, creds Credentials, user HotspotUser) (Outcome, error) {
	findCmd := fmt.Sprintf(`/ip hotspot user print where name="%s"`, user.Name)
	out, err := p.run(ctx, creds, findCmd)
	if err != nil {
		return "", err
	}

	if !strings.Contains(out, user.Name) {
		addCmd := fmt.Sprintf(`/ip hotspot user add name="%s" password="%s" profile="%s" comment="%s"`,
			user.Name, user.Password, user.Profile, user.comment())
		if _, err := p.run(ctx, creds, addCmd); err != nil {
			return "", err
		}
		return Created, nil
	}

	setCmd := fmt.Sprintf(`/ip hotspot user set [find name="%s"] password="%s" comment="%s"`,
		user.Name, user.Password, user.comment())
	if _, err := p.run(ctx, creds, setCmd); err != nil {
		return "", err
	}
	return Updated, nil
}

// Ping verifies the stored credentials reach the device.
func (p *Provisioner) Ping(ctx context.Context, creds Credentials) error {
	_, err := p.run(ctx, creds, "/system identity print")
	return err
}

// RemoveUser deletes a subscriber credential, used when a voucher is purged.
func (p *Provisioner) RemoveUser(ctx context.Context, creds Credentials, name string) error {
	cmd := fmt.Sprintf(`/ip hotspot user remove [find name="%s"]`, name)
	_, err := p.run(ctx, creds, cmd)
	return err
}

// LeasedAddresses lists the addresses currently handed out by the router's
// DHCP server, one per output line.
func (p *Provisioner) LeasedAddresses(ctx context.Context, creds Credentials) ([]string, error) {
	cmd := `:foreach i in=[/ip dhcp-server lease find] do={:put [/ip dhcp-server lease get $i address]}`
	out, err := p.run(ctx, creds, cmd)
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			addrs = append(addrs, line)
		}
	}
	return addrs, nil
}

// EnsureProfile creates or updates the user profile a plan maps to, with
// its shared-users cap and rate limit. Same add-or-set convergence as
// Provision.
func (p *Provisioner) EnsureProfile(ctx context.Context, creds Credentials, name string, sharedUsers, rateMbps int) error {
	findCmd := fmt.Sprintf(`/ip hotspot user profile print where name="%s"`, name)
	out, err := p.run(ctx, creds, findCmd)
	if err != nil {
		return err
	}

	if !strings.Contains(out, name) {
		addCmd := fmt.Sprintf(`/ip hotspot user profile add name=%s shared-users=%d rate-limit=%dM/%dM`,
			name, sharedUsers, rateMbps, rateMbps)
		_, err = p.run(ctx, creds, addCmd)
		return err
	}

	setCmd := fmt.Sprintf(`/ip hotspot user profile set [find name="%s"] shared-users=%d rate-limit=%dM/%dM`,
		name, sharedUsers, rateMbps, rateMbps)
	_, err = p.run(ctx, creds, setCmd)
	return err
}
