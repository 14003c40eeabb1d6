/*
Run a broker:

	$ lbbroker -frontend tcp://*:5555 -backend tcp://*:6666

or with a configuration file (flags given explicitly override it):

	$ lbbroker -config broker.yaml -loglevel debug
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dermesser/lbbroker/broker"
	"github.com/dermesser/lbbroker/log"
)

// Parse args into a Config: defaults, then the file given by -config, then all other flags
// that were set explicitly.
func parseArgs(args []string) (Config, error) {
	fs := flag.NewFlagSet("lbbroker", flag.ContinueOnError)

	defaults := defaultConfig()
	var cfg Config
	var path string

	fs.StringVar(&path, "config", "", "YAML configuration file")
	fs.StringVar(&cfg.Frontend, "frontend", defaults.Frontend, "Endpoint clients connect to")
	fs.StringVar(&cfg.Backend, "backend", defaults.Backend, "Endpoint workers connect to")
	fs.StringVar(&cfg.PollInterval, "poll_interval", defaults.PollInterval, "How often to check for shutdown")
	fs.IntVar(&cfg.SendHWM, "send_hwm", defaults.SendHWM, "Messages queued per peer before it counts as unreachable (0: no limit)")
	fs.StringVar(&cfg.AssignmentTimeout, "assignment_timeout", defaults.AssignmentTimeout, "Give up on workers not replying within this time (0: never)")
	fs.StringVar(&cfg.ExpiryPolicy, "expiry_policy", defaults.ExpiryPolicy, "What to do with requests of workers given up on: drop or requeue")
	fs.IntVar(&cfg.BacklogLimit, "backlog_limit", defaults.BacklogLimit, "Number of requests the broker holds itself")
	fs.StringVar(&cfg.Loglevel, "loglevel", defaults.Loglevel, "none, errors, warnings, info or debug")
	fs.Float64Var(&cfg.ViolationLogRate, "violation_log_rate", defaults.ViolationLogRate, "Protocol violations logged per second (0: all)")
	fs.StringVar(&cfg.StatsInterval, "stats_interval", defaults.StatsInterval, "Log statistics this often (empty: never)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if path == "" {
		return cfg, nil
	}

	fileCfg, err := loadConfig(path)

	if err != nil {
		return cfg, err
	}

	flagged := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { flagged[f.Name] = true })

	override := func(name string, dst, src interface{}) {
		if !flagged[name] {
			return
		}
		switch d := dst.(type) {
		case *string:
			*d = *src.(*string)
		case *int:
			*d = *src.(*int)
		case *float64:
			*d = *src.(*float64)
		}
	}

	override("frontend", &fileCfg.Frontend, &cfg.Frontend)
	override("backend", &fileCfg.Backend, &cfg.Backend)
	override("poll_interval", &fileCfg.PollInterval, &cfg.PollInterval)
	override("send_hwm", &fileCfg.SendHWM, &cfg.SendHWM)
	override("assignment_timeout", &fileCfg.AssignmentTimeout, &cfg.AssignmentTimeout)
	override("expiry_policy", &fileCfg.ExpiryPolicy, &cfg.ExpiryPolicy)
	override("backlog_limit", &fileCfg.BacklogLimit, &cfg.BacklogLimit)
	override("loglevel", &fileCfg.Loglevel, &cfg.Loglevel)
	override("violation_log_rate", &fileCfg.ViolationLogRate, &cfg.ViolationLogRate)
	override("stats_interval", &fileCfg.StatsInterval, &cfg.StatsInterval)

	return fileCfg, nil
}

func logStats(ctx context.Context, b *broker.Broker, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := b.Stats()
			log.LB_log(log.LOGLEVEL_INFO, fmt.Sprintf("workers %d available, %d busy; backlog %d; %d requests, %d replies, %d expired, %d violations",
				st.WorkersAvailable, st.WorkersBusy, st.Backlog, st.Requests, st.Replies, st.Expired, st.ProtocolViolations))
		}
	}
}

func run(args []string) error {
	cfg, err := parseArgs(args)

	if err != nil {
		return err
	}

	s, err := cfg.settings()

	if err != nil {
		return err
	}

	log.SetLoglevel(s.loglevel)
	defer log.Sync()

	b, err := broker.NewBroker(s.frontend, s.backend)

	if err != nil {
		return err
	}
	defer b.Close()

	s.apply(b)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.statsInterval > 0 {
		go logStats(ctx, b, s.statsInterval)
	}

	fmt.Println("Broker running; frontend", b.FrontendEndpoint(), "backend", b.BackendEndpoint())

	return b.Run(ctx)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
