package tun

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/1ureka/tunrelay/internal/util"
)

// ProvisionConfig describes how the interface is brought up.
type ProvisionConfig struct {
	Name    string
	MTU     int
	Address string // CIDR, e.g. 10.8.0.1/24
	Route   string // optional destination, e.g. 0.0.0.0/0
	Gateway string // next hop for Route
}

// Runner executes one external command. Tests replace it.
type Runner func(name string, args ...string) error

// ExecRunner runs the command and folds its stderr into the error.
func ExecRunner(name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return nil
}

// Commands returns the ip invocations Provision performs, in order.
func (c ProvisionConfig) Commands() [][]string {
	cmds := [][]string{}
	if c.MTU > 0 {
		cmds = append(cmds, []string{"ip", "link", "set", "dev", c.Name, "mtu", strconv.Itoa(c.MTU)})
	}
	if c.Address != "" {
		cmds = append(cmds, []string{"ip", "addr", "add", c.Address, "dev", c.Name})
	}
	cmds = append(cmds, []string{"ip", "link", "set", "dev", c.Name, "up"})
	if c.Route != "" && c.Gateway != "" {
		cmds = append(cmds, []string{"ip", "route", "add", c.Route, "via", c.Gateway, "dev", c.Name})
	}
	return cmds
}

// Provision assigns the address and routes through the ip tool. Link and
// address failures are fatal; a route that cannot be added (for example an
// existing default route) is logged and skipped.
func Provision(c ProvisionConfig, run Runner) error {
	if c.Name == "" {
		return fmt.Errorf("provision: interface name is empty")
	}
	if run == nil {
		run = ExecRunner
	}
	for _, cmd := range c.Commands() {
		err := run(cmd[0], cmd[1:]...)
		if err == nil {
			continue
		}
		if cmd[1] == "route" {
			util.LogWarning("provision %s: route not added: %v", c.Name, err)
			continue
		}
		return fmt.Errorf("provision %s: %w", c.Name, err)
	}
	return nil
}

// Teardown deletes the interface.
func Teardown(name string, run Runner) error {
	if run == nil {
		run = ExecRunner
	}
	return run("ip", "link", "delete", name)
}
