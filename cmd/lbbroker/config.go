package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dermesser/lbbroker/broker"
	"github.com/dermesser/lbbroker/log"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Broker configuration; read from a YAML file, then overridden by flags.
type Config struct {
	Frontend          string  `yaml:"frontend"`
	Backend           string  `yaml:"backend"`
	PollInterval      string  `yaml:"poll_interval"`
	SendHWM           int     `yaml:"send_hwm"`
	AssignmentTimeout string  `yaml:"assignment_timeout"`
	ExpiryPolicy      string  `yaml:"expiry_policy"`
	BacklogLimit      int     `yaml:"backlog_limit"`
	Loglevel          string  `yaml:"loglevel"`
	ViolationLogRate  float64 `yaml:"violation_log_rate"`
	StatsInterval     string  `yaml:"stats_interval"`
}

func defaultConfig() Config {
	return Config{
		Frontend:         "tcp://*:5555",
		Backend:          "tcp://*:6666",
		PollInterval:     broker.DEFAULT_POLL_INTERVAL.String(),
		SendHWM:          broker.DEFAULT_SEND_HWM,
		ExpiryPolicy:     broker.EXPIRE_DROP.String(),
		BacklogLimit:     broker.DEFAULT_BACKLOG_LIMIT,
		Loglevel:         "warnings",
		ViolationLogRate: 1,
	}
}

// Reads path over the defaults. Keys missing in the file keep their default.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)

	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func parseLoglevel(s string) (int, error) {
	switch strings.ToLower(s) {
	case "none":
		return log.LOGLEVEL_NONE, nil
	case "errors", "error":
		return log.LOGLEVEL_ERRORS, nil
	case "warnings", "warning", "warn":
		return log.LOGLEVEL_WARNINGS, nil
	case "info":
		return log.LOGLEVEL_INFO, nil
	case "debug":
		return log.LOGLEVEL_DEBUG, nil
	default:
		return 0, fmt.Errorf("unknown loglevel %q", s)
	}
}

func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)

	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", name, s)
	}
	return d, nil
}

// The checked form of a Config.
type settings struct {
	frontend, backend string

	pollInterval, assignmentTimeout, statsInterval time.Duration

	policy       broker.ExpiryPolicy
	backlogLimit int
	sendHWM      int
	loglevel     int
	violations   rate.Limit
}

func (cfg Config) settings() (settings, error) {
	var s settings
	var err error

	s.frontend, s.backend = cfg.Frontend, cfg.Backend

	if s.frontend == "" || s.backend == "" {
		return s, fmt.Errorf("frontend and backend endpoints are required")
	}
	if s.frontend == s.backend {
		return s, fmt.Errorf("frontend and backend must differ (both are %s)", s.frontend)
	}

	if s.pollInterval, err = parseDuration("poll_interval", cfg.PollInterval); err != nil {
		return s, err
	}
	if s.assignmentTimeout, err = parseDuration("assignment_timeout", cfg.AssignmentTimeout); err != nil {
		return s, err
	}
	if s.statsInterval, err = parseDuration("stats_interval", cfg.StatsInterval); err != nil {
		return s, err
	}
	if s.policy, err = broker.ParseExpiryPolicy(cfg.ExpiryPolicy); err != nil {
		return s, err
	}
	if s.loglevel, err = parseLoglevel(cfg.Loglevel); err != nil {
		return s, err
	}

	if cfg.BacklogLimit < 1 {
		return s, fmt.Errorf("backlog_limit must be positive, is %d", cfg.BacklogLimit)
	}
	s.backlogLimit = cfg.BacklogLimit

	if cfg.SendHWM < 0 {
		return s, fmt.Errorf("send_hwm must not be negative, is %d", cfg.SendHWM)
	}
	s.sendHWM = cfg.SendHWM

	if cfg.ViolationLogRate <= 0 {
		s.violations = rate.Inf
	} else {
		s.violations = rate.Limit(cfg.ViolationLogRate)
	}

	return s, nil
}

func (s settings) apply(b *broker.Broker) {
	if s.pollInterval > 0 {
		b.SetPollInterval(s.pollInterval)
	}
	b.SetSendHWM(s.sendHWM)
	b.SetBacklogLimit(s.backlogLimit)
	b.SetAssignmentTimeout(s.assignmentTimeout, s.policy)
	b.SetViolationLogRate(s.violations, 10)
}
