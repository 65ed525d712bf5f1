// Package calendar parses calendar command flags and composes transport
// entrypoints.
package calendar

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/kangpj/activeCal/internal/platform/cmd"
	server "github.com/kangpj/activeCal/internal/services/calendar/app"
)

// Config holds calendar command configuration.
type Config struct {
	HTTPAddr          string        `env:"ACTIVECAL_HTTP_ADDR"           envDefault:":3000"`
	ManagerDepartment string        `env:"ACTIVECAL_MANAGER_DEPARTMENT"  envDefault:"ulsanedu"`
	ManagerNickname   string        `env:"ACTIVECAL_MANAGER_NICKNAME"    envDefault:"caconam"`
	HeartbeatInterval time.Duration `env:"ACTIVECAL_HEARTBEAT_INTERVAL"  envDefault:"30s"`
	SessionTimeout    time.Duration `env:"ACTIVECAL_SESSION_TIMEOUT"     envDefault:"90s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "calendar HTTP listen address")
	fs.StringVar(&cfg.ManagerDepartment, "manager-department", cfg.ManagerDepartment, "privileged department granting the manager role")
	fs.StringVar(&cfg.ManagerNickname, "manager-nickname", cfg.ManagerNickname, "privileged nickname granting the manager role")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "interval between idle-session sweeps")
	fs.DurationVar(&cfg.SessionTimeout, "session-timeout", cfg.SessionTimeout, "idle time after which a session is released")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the calendar app and starts realtime transport behavior.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCalendar, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:          cfg.HTTPAddr,
			ManagerDepartment: cfg.ManagerDepartment,
			ManagerNickname:   cfg.ManagerNickname,
			HeartbeatInterval: cfg.HeartbeatInterval,
			SessionTimeout:    cfg.SessionTimeout,
		}); err != nil {
			return fmt.Errorf("serve calendar: %w", err)
		}
		return nil
	})
}
