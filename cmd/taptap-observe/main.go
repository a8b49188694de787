// Command taptap-observe taps a controller/gateway serial link and emits
// JSON events describing the PV network's discovered infrastructure and
// power reports, without ever writing to the link itself.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/librescoot/taptap-observer/pkg/eventbus"
	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/gateway/physical"
	"github.com/librescoot/taptap-observer/pkg/gateway/transport"
	"github.com/librescoot/taptap-observer/pkg/metrics"
	"github.com/librescoot/taptap-observer/pkg/observer"
	"github.com/librescoot/taptap-observer/pkg/pv/application"
	"github.com/librescoot/taptap-observer/schema"
)

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [flags]

Commands:
  observe             decode and emit JSON events (the normal mode)
  peek-bytes          print the raw byte stream
  peek-frames         print decoded link-layer frames
  peek-activity       print decoded transport/application-layer events
  list-serial-ports   list local serial ports
  schema              print the JSON Schema for emitted events

Run "%s <command> -h" for command-specific flags.
`, os.Args[0], os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := newLogger()
	command, args := os.Args[1], os.Args[2:]

	switch command {
	case "list-serial-ports":
		ports, err := physical.ListPorts()
		if err != nil {
			logger.WithError(err).Fatal("listing serial ports")
		}
		for _, p := range ports {
			fmt.Println(p)
		}

	case "schema":
		fmt.Println(string(schema.Events))

	case "peek-bytes":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		raw := fs.Bool("raw", false, "print raw binary bytes without hex formatting")
		src := registerSourceFlags(fs)
		fs.Parse(args)
		peekBytes(src, logger, *raw)

	case "peek-frames":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		src := registerSourceFlags(fs)
		fs.Parse(args)
		peekFrames(src, logger)

	case "peek-activity":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		src := registerSourceFlags(fs)
		fs.Parse(args)
		peekActivity(src, logger)

	case "observe":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		src := registerSourceFlags(fs)
		stateFile := fs.String("state-file", "taptap-observer-state.json", "path to the persisted infrastructure state")
		metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus metrics on (e.g. :9100); empty disables")
		redisAddr := fs.String("redis-addr", "", "Redis address to publish decoded events to; empty disables")
		redisPassword := fs.String("redis-password", "", "Redis password")
		redisDB := fs.Int("redis-db", 0, "Redis database number")
		redisChannel := fs.String("redis-channel", "taptap-observer", "Redis channel to publish decoded events on")
		fs.Parse(args)
		runObserve(src, logger, observeOptions{
			stateFile:     *stateFile,
			metricsAddr:   *metricsAddr,
			redisAddr:     *redisAddr,
			redisPassword: *redisPassword,
			redisDB:       *redisDB,
			redisChannel:  *redisChannel,
		})

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(1)
	}
}

type observeOptions struct {
	stateFile     string
	metricsAddr   string
	redisAddr     string
	redisPassword string
	redisDB       int
	redisChannel  string
}

func runObserve(src *sourceFlags, logger logrus.FieldLogger, opts observeOptions) {
	state, err := observer.LoadPersistentState(opts.stateFile)
	if err != nil {
		logger.WithError(err).Fatal("loading persistent state")
	}

	sink := &multiSink{logger: logger}
	if opts.redisAddr != "" {
		publisher, err := eventbus.NewPublisher(opts.redisAddr, opts.redisPassword, opts.redisDB, opts.redisChannel)
		if err != nil {
			logger.WithError(err).Fatal("connecting to redis")
		}
		defer publisher.Close()
		sink.publisher = publisher
	}

	persisting := &persistingEventSink{inner: sink, path: opts.stateFile, logger: logger}
	obs := observer.NewObserver(state, persisting, logger)
	persisting.obs = obs
	obs.EmitCurrentState()

	appReceiver := application.NewReceiver(obs, obs)
	transportReceiver := transport.NewReceiver(appReceiver)
	linkReceiver := link.NewReceiver(transportReceiver)

	if opts.metricsAddr != "" {
		collector := metrics.NewCollector(linkReceiver, transportReceiver, prometheus.Labels{"source": sourceLabel(src)})
		registry := prometheus.NewRegistry()
		registry.MustRegister(collector)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(opts.metricsAddr, mux); err != nil {
				logger.WithError(err).Error("metrics listener stopped")
			}
		}()
		logger.WithField("addr", opts.metricsAddr).Info("serving metrics")
	}

	src.readLoop(logger, linkReceiver.Extend)
}

func sourceLabel(s *sourceFlags) string {
	if s.serial != "" {
		return "serial://" + s.serial
	}
	return fmt.Sprintf("tcp://%s:%d", s.tcp, s.port)
}
