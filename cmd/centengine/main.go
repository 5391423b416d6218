package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/centreon/centreon-engine-sub012/internal/broker"
	"github.com/centreon/centreon-engine-sub012/internal/config"
	"github.com/centreon/centreon-engine-sub012/internal/engine"
	"github.com/centreon/centreon-engine-sub012/internal/logging"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/resolve"
)

func main() {
	var verifyCount int
	var testScheduling bool
	var settingsFile string

	// Manual parsing so -v -v and -vv both work
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-v", "--verify-config":
			verifyCount++
		case "-s", "--test-scheduling":
			testScheduling = true
		case "-h", "--help":
			printUsage()
			os.Exit(0)
		case "-V", "--version":
			fmt.Printf("centengine %s\n", engine.Version)
			os.Exit(0)
		default:
			if len(arg) > 1 && arg[0] == '-' {
				if arg[1] == '-' {
					fmt.Fprintf(os.Stderr, "Unknown option: %s\n", arg)
					printUsage()
					os.Exit(1)
				}
				for _, ch := range arg[1:] {
					switch ch {
					case 'v':
						verifyCount++
					case 's':
						testScheduling = true
					default:
						fmt.Fprintf(os.Stderr, "Unknown option: -%c\n", ch)
						printUsage()
						os.Exit(1)
					}
				}
				continue
			}
			settingsFile = arg
		}
	}

	settings, err := config.LoadSettings(settingsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	switch {
	case verifyCount > 0:
		os.Exit(runVerify(settings, verifyCount))
	case testScheduling:
		os.Exit(runSchedulingTest(settings))
	}
	os.Exit(runDaemon(settings))
}

func printUsage() {
	fmt.Printf("\ncentengine %s\n\n", engine.Version)
	fmt.Printf("Usage: %s [options] [settings_file]\n\n", os.Args[0])
	fmt.Println("Options:")
	fmt.Println()
	fmt.Println("  -v, --verify-config          Verify all configuration data (-v -v for more info)")
	fmt.Println("  -s, --test-scheduling        Show projected check scheduling for the current configuration")
	fmt.Println("  -V, --version                Print version information")
	fmt.Println("  -h, --help                   Print this help message")
	fmt.Println()
	fmt.Printf("Settings can be overridden with %s_* environment variables.\n\n", config.EnvPrefix)
}

func loadRegistry(s config.Settings) (*objects.Registry, resolve.Result, error) {
	ds, err := config.LoadObjects(s.ObjectsFile)
	if err != nil {
		return nil, resolve.Result{}, err
	}
	reg, res := resolve.Resolve(ds)
	return reg, res, nil
}

func runVerify(s config.Settings, verbosity int) int {
	fmt.Printf("\ncentengine %s\n\n", engine.Version)
	fmt.Printf("Reading configuration data from %s...\n\n", s.ObjectsFile)

	reg, res, err := loadRegistry(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}
	fmt.Println("Running pre-flight check on configuration data...")
	fmt.Println()

	if verbosity >= 2 {
		fmt.Println("Checking commands...")
		for _, c := range reg.Commands {
			fmt.Printf("\tChecked command '%s'\n", c.Name)
		}
		fmt.Println("Checking contacts...")
		for _, c := range reg.Contacts {
			fmt.Printf("\tChecked contact '%s'\n", c.Name)
		}
		fmt.Println("Checking hosts...")
		for _, h := range reg.Hosts() {
			fmt.Printf("\tChecked host '%s'\n", h.HostName)
		}
		fmt.Println("Checking services...")
		for _, svc := range reg.Services() {
			fmt.Printf("\tChecked service '%s' on host '%s'\n", svc.Description, svc.HostName)
		}
		fmt.Println("Checking timeperiods...")
		for _, tp := range reg.Timeperiods {
			fmt.Printf("\tChecked time period '%s'\n", tp.Name)
		}
		fmt.Println()
	}

	fmt.Printf("Checked %d commands.\n", len(reg.Commands))
	fmt.Printf("Checked %d contacts.\n", len(reg.Contacts))
	fmt.Printf("Checked %d contact groups.\n", len(reg.ContactGroups))
	fmt.Printf("Checked %d hosts.\n", len(reg.Hosts()))
	fmt.Printf("Checked %d services.\n", len(reg.Services()))
	fmt.Printf("Checked %d timeperiods.\n", len(reg.Timeperiods))
	fmt.Printf("Checked %d dependencies.\n", len(reg.Dependencies))
	fmt.Printf("Checked %d escalations.\n", len(reg.Escalations))
	fmt.Println()

	if res.Warn != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", res.Warn)
	}
	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", res.Err)
	}
	fmt.Printf("Total Warnings: %d\n", res.Warnings)
	fmt.Printf("Total Errors:   %d\n", res.Errors)
	fmt.Println()
	if !res.OK() {
		fmt.Println("***> One or more problems was encountered while running the pre-flight check...")
		return 1
	}
	fmt.Println("Things look okay - No serious problems were detected during the pre-flight check")
	return 0
}

func runSchedulingTest(s config.Settings) int {
	reg, res, err := loadRegistry(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}
	if !res.OK() {
		fmt.Fprintf(os.Stderr, "Error: %s\n", res.Err)
		return 1
	}
	cfg := s.EngineConfig()

	icd := func(cs []*objects.Checkable) float64 {
		if len(cs) == 0 {
			return 0
		}
		total := 0.0
		for _, c := range cs {
			total += c.CheckInterval
		}
		avg := total / float64(len(cs)) * float64(cfg.IntervalLength)
		return avg / float64(len(cs))
	}
	hosts, services := reg.Hosts(), reg.Services()
	interleave := 1
	if len(hosts) > 0 && len(services)/len(hosts) > 1 {
		interleave = len(services) / len(hosts)
	}

	fmt.Println("Projected scheduling information for host and service checks")
	fmt.Print("based on the current configuration.\n\n")

	fmt.Printf("HOST SCHEDULING INFORMATION\n")
	fmt.Printf("--------------------------\n")
	fmt.Printf("Total hosts:                        %d\n", len(hosts))
	fmt.Printf("Host inter-check delay:             %.2f sec\n", icd(hosts))
	fmt.Printf("Max host check spread:              %d min\n", cfg.MaxHostCheckSpread)
	fmt.Println()

	fmt.Printf("SERVICE SCHEDULING INFORMATION\n")
	fmt.Printf("------------------------------\n")
	fmt.Printf("Total services:                     %d\n", len(services))
	fmt.Printf("Service inter-check delay:          %.2f sec\n", icd(services))
	fmt.Printf("Service interleave factor:          %d\n", interleave)
	fmt.Printf("Max service check spread:           %d min\n", cfg.MaxServiceCheckSpread)
	fmt.Println()

	fmt.Printf("CHECK PROCESSING INFORMATION\n")
	fmt.Printf("----------------------------\n")
	fmt.Printf("Max concurrent service checks:      ")
	if cfg.MaxParallelServiceChecks <= 0 {
		fmt.Printf("Unlimited\n")
	} else {
		fmt.Printf("%d\n", cfg.MaxParallelServiceChecks)
	}
	fmt.Println()
	return 0
}

func runDaemon(s config.Settings) int {
	logger, err := logging.New(s.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}
	defer logger.Close()
	log := logger.FieldLogger()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eng, err := engine.New(engine.Options{
		Settings:   s,
		Log:        logger,
		Registerer: promReg,
		Sinks:      []broker.Sink{broker.LogSink{Log: log}},
	})
	if err != nil {
		log.WithError(err).Error("cannot create engine")
		return 1
	}

	now := time.Now()
	ds, err := config.LoadObjects(s.ObjectsFile)
	if err != nil {
		log.WithError(err).Error("cannot read object configuration")
		return 1
	}
	if res := eng.Load(ds, now); !res.OK() {
		return 1
	}
	if err := eng.Start(now); err != nil {
		log.WithError(err).Error("cannot start engine")
		return 1
	}

	var srv *http.Server
	if s.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv = &http.Server{
			Addr:         s.MetricsListen,
			Handler:      mux,
			ReadTimeout:  time.Second,
			WriteTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics listener")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGUSR1)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.WithField("signal", sig.String()).Info("shutting down")
				eng.Stop()
				return
			case syscall.SIGHUP:
				log.Info("caught SIGHUP, reloading object configuration")
				eng.RequestReload()
			case syscall.SIGUSR1:
				eng.ReopenLog()
			}
		}
	}()

	log.WithFields(logrus.Fields{
		"version":  engine.Version,
		"instance": eng.InstanceID,
		"pid":      os.Getpid(),
	}).Info("entering main event loop")
	runErr := eng.Run(ctx)
	signal.Stop(sigCh)

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics listener shutdown")
		}
	}
	if runErr != nil {
		log.WithError(runErr).Error("event loop")
		return 1
	}
	return 0
}
