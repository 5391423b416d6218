package config

import (
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/centreon/centreon-engine-sub012/internal/logging"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/perfdata"
)

// EnvPrefix prefixes every environment override, e.g.
// CENTENGINE_ENGINE_MAX_CONCURRENT_CHECKS or CENTENGINE_LOG_LEVEL.
const EnvPrefix = "CENTENGINE"

// Settings is the engine settings file.
type Settings struct {
	ObjectsFile   string `yaml:"objects_file" envconfig:"OBJECTS_FILE"`
	ResourceFile  string `yaml:"resource_file" envconfig:"RESOURCE_FILE"`
	MetricsListen string `yaml:"metrics_listen" envconfig:"METRICS_LISTEN"`

	Log       logging.Settings  `yaml:"log" envconfig:"LOG"`
	Retention RetentionSettings `yaml:"retention" envconfig:"RETENTION"`
	Perfdata  PerfdataSettings  `yaml:"perfdata" envconfig:"PERFDATA"`
	Engine    EngineSettings    `yaml:"engine"`
}

// RetentionSettings controls state persistence.
type RetentionSettings struct {
	Enabled        bool          `yaml:"enabled" envconfig:"ENABLED"`
	File           string        `yaml:"file" envconfig:"FILE"`
	UpdateInterval time.Duration `yaml:"update_interval" envconfig:"UPDATE_INTERVAL"`
}

// PerfdataSettings controls the performance-data files.
type PerfdataSettings struct {
	Enabled         bool   `yaml:"enabled" envconfig:"ENABLED"`
	HostFile        string `yaml:"host_file"`
	ServiceFile     string `yaml:"service_file"`
	HostTemplate    string `yaml:"host_template"`
	ServiceTemplate string `yaml:"service_template"`
	Mode            string `yaml:"mode"` // append, write or pipe
}

// EngineSettings are the scheduling and state machine knobs. Durations
// are written as Go duration strings ("30s", "5m").
type EngineSettings struct {
	IntervalLength           int           `yaml:"interval_length" envconfig:"INTERVAL_LENGTH"`
	MaxServiceCheckSpread    int           `yaml:"max_service_check_spread"` // minutes
	MaxHostCheckSpread       int           `yaml:"max_host_check_spread"`
	MaxParallelServiceChecks int           `yaml:"max_parallel_service_checks"`
	MaxConcurrentChecks      int           `yaml:"max_concurrent_checks" envconfig:"MAX_CONCURRENT_CHECKS"`
	ServiceCheckTimeout      time.Duration `yaml:"service_check_timeout"`
	HostCheckTimeout         time.Duration `yaml:"host_check_timeout"`
	ServiceCheckTimeoutState string        `yaml:"service_check_timeout_state"`
	CheckReaperInterval      time.Duration `yaml:"check_reaper_interval"`
	MaxCheckReaperTime       time.Duration `yaml:"max_check_reaper_time"`

	ServiceFreshnessCheckInterval time.Duration `yaml:"service_freshness_check_interval"`
	HostFreshnessCheckInterval    time.Duration `yaml:"host_freshness_check_interval"`
	AdditionalFreshnessLatency    time.Duration `yaml:"additional_freshness_latency"`
	AutoRescheduleChecks          bool          `yaml:"auto_reschedule_checks"`
	AutoReschedulingInterval      time.Duration `yaml:"auto_rescheduling_interval"`
	OrphanCheckInterval           time.Duration `yaml:"orphan_check_interval"`

	LowServiceFlapThreshold  float64 `yaml:"low_service_flap_threshold"`
	HighServiceFlapThreshold float64 `yaml:"high_service_flap_threshold"`
	LowHostFlapThreshold     float64 `yaml:"low_host_flap_threshold"`
	HighHostFlapThreshold    float64 `yaml:"high_host_flap_threshold"`
	FlapWeightDecay          float64 `yaml:"flap_weight_decay"`

	NewlinesAreEscaped           bool `yaml:"newlines_are_escaped"`
	HostDownDisableServiceChecks bool `yaml:"host_down_disable_service_checks"`
	SoftStateDependencies        bool `yaml:"soft_state_dependencies"`

	ExecuteServiceChecks       bool `yaml:"execute_service_checks" envconfig:"EXECUTE_SERVICE_CHECKS"`
	ExecuteHostChecks          bool `yaml:"execute_host_checks" envconfig:"EXECUTE_HOST_CHECKS"`
	AcceptPassiveServiceChecks bool `yaml:"accept_passive_service_checks"`
	AcceptPassiveHostChecks    bool `yaml:"accept_passive_host_checks"`
	CheckServiceFreshness      bool `yaml:"check_service_freshness"`
	CheckHostFreshness         bool `yaml:"check_host_freshness"`
	EnableNotifications        bool `yaml:"enable_notifications" envconfig:"ENABLE_NOTIFICATIONS"`
	EnableFlapDetection        bool `yaml:"enable_flap_detection"`
}

// DefaultSettings returns the stock settings.
func DefaultSettings() Settings {
	return Settings{
		Log: logging.DefaultSettings(),
		Retention: RetentionSettings{
			Enabled:        true,
			File:           "/var/lib/centreon-engine/retention.db",
			UpdateInterval: time.Hour,
		},
		Perfdata: PerfdataSettings{Mode: "append"},
		Engine: EngineSettings{
			IntervalLength:                60,
			MaxServiceCheckSpread:         30,
			MaxHostCheckSpread:            30,
			MaxConcurrentChecks:           64,
			ServiceCheckTimeout:           60 * time.Second,
			HostCheckTimeout:              30 * time.Second,
			ServiceCheckTimeoutState:      "unknown",
			CheckReaperInterval:           10 * time.Second,
			MaxCheckReaperTime:            30 * time.Second,
			ServiceFreshnessCheckInterval: time.Minute,
			HostFreshnessCheckInterval:    time.Minute,
			AdditionalFreshnessLatency:    15 * time.Second,
			AutoReschedulingInterval:      30 * time.Second,
			OrphanCheckInterval:           time.Minute,
			LowServiceFlapThreshold:       20,
			HighServiceFlapThreshold:      30,
			LowHostFlapThreshold:          20,
			HighHostFlapThreshold:         30,
			FlapWeightDecay:               0.025,
			ExecuteServiceChecks:          true,
			ExecuteHostChecks:             true,
			AcceptPassiveServiceChecks:    true,
			AcceptPassiveHostChecks:       true,
			CheckServiceFreshness:         true,
			EnableNotifications:           true,
			EnableFlapDetection:           true,
		},
	}
}

// LoadSettings reads the settings file at path over the defaults and then
// applies environment overrides. An empty path uses the defaults alone.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, errors.Wrapf(err, "reading settings %s", path)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, errors.Wrapf(err, "parsing settings %s", path)
		}
	}
	if err := ApplyEnv(&s); err != nil {
		return s, err
	}
	if err := s.Validate(); err != nil {
		return s, errors.Wrapf(err, "settings %s", path)
	}
	return s, nil
}

// ApplyEnv overrides s from CENTENGINE_* environment variables.
func ApplyEnv(s *Settings) error {
	return errors.Wrap(envconfig.Process(EnvPrefix, s), "reading environment overrides")
}

// Validate rejects settings the engine cannot run with.
func (s Settings) Validate() error {
	e := s.Engine
	switch {
	case e.IntervalLength <= 0:
		return errors.New("interval_length must be positive")
	case e.MaxConcurrentChecks < 0:
		return errors.New("max_concurrent_checks must not be negative")
	case e.CheckReaperInterval < time.Second:
		return errors.New("check_reaper_interval must be at least one second")
	case e.FlapWeightDecay < 0 || e.FlapWeightDecay >= 1:
		return errors.New("flap_weight_decay must be in [0, 1)")
	case e.LowServiceFlapThreshold > e.HighServiceFlapThreshold,
		e.LowHostFlapThreshold > e.HighHostFlapThreshold:
		return errors.New("low flap thresholds must not exceed the high ones")
	}
	if _, ok := timeoutStates[strings.ToLower(e.ServiceCheckTimeoutState)]; !ok {
		return errors.Errorf("unknown service_check_timeout_state %q", e.ServiceCheckTimeoutState)
	}
	if _, ok := perfdataModes[strings.ToLower(s.Perfdata.Mode)]; !ok {
		return errors.Errorf("unknown perfdata mode %q", s.Perfdata.Mode)
	}
	return nil
}

var timeoutStates = map[string]int{
	"ok":       objects.ServiceOK,
	"warning":  objects.ServiceWarning,
	"critical": objects.ServiceCritical,
	"unknown":  objects.ServiceUnknown,
}

var perfdataModes = map[string]int{
	"":       perfdata.FileAppend,
	"append": perfdata.FileAppend,
	"write":  perfdata.FileWrite,
	"pipe":   perfdata.FilePipe,
}

// PerfdataMode returns the perfdata file mode constant.
func (s Settings) PerfdataMode() int {
	return perfdataModes[strings.ToLower(s.Perfdata.Mode)]
}

func seconds(d time.Duration) int { return int(d / time.Second) }

// EngineConfig builds the runtime configuration of the core.
func (s Settings) EngineConfig() *objects.Config {
	e := s.Engine
	cfg := objects.DefaultConfig()
	cfg.IntervalLength = e.IntervalLength
	cfg.MaxServiceCheckSpread = e.MaxServiceCheckSpread
	cfg.MaxHostCheckSpread = e.MaxHostCheckSpread
	cfg.MaxParallelServiceChecks = e.MaxParallelServiceChecks
	cfg.MaxConcurrentChecks = e.MaxConcurrentChecks
	cfg.ServiceCheckTimeout = seconds(e.ServiceCheckTimeout)
	cfg.HostCheckTimeout = seconds(e.HostCheckTimeout)
	cfg.ServiceCheckTimeoutState = timeoutStates[strings.ToLower(e.ServiceCheckTimeoutState)]
	cfg.CheckReaperInterval = seconds(e.CheckReaperInterval)
	cfg.MaxCheckReaperTime = seconds(e.MaxCheckReaperTime)
	cfg.ServiceFreshnessCheckInterval = seconds(e.ServiceFreshnessCheckInterval)
	cfg.HostFreshnessCheckInterval = seconds(e.HostFreshnessCheckInterval)
	cfg.AdditionalFreshnessLatency = seconds(e.AdditionalFreshnessLatency)
	cfg.AutoReschedulingEnabled = e.AutoRescheduleChecks
	cfg.AutoReschedulingInterval = seconds(e.AutoReschedulingInterval)
	cfg.OrphanCheckInterval = seconds(e.OrphanCheckInterval)
	cfg.LowServiceFlapThreshold = e.LowServiceFlapThreshold
	cfg.HighServiceFlapThreshold = e.HighServiceFlapThreshold
	cfg.LowHostFlapThreshold = e.LowHostFlapThreshold
	cfg.HighHostFlapThreshold = e.HighHostFlapThreshold
	cfg.FlapWeightDecay = e.FlapWeightDecay
	cfg.NewlinesAreEscaped = e.NewlinesAreEscaped
	cfg.HostDownDisableServiceChecks = e.HostDownDisableServiceChecks
	cfg.SoftStateDependencies = e.SoftStateDependencies
	cfg.ExecuteServiceChecks = e.ExecuteServiceChecks
	cfg.ExecuteHostChecks = e.ExecuteHostChecks
	cfg.AcceptPassiveServiceChecks = e.AcceptPassiveServiceChecks
	cfg.AcceptPassiveHostChecks = e.AcceptPassiveHostChecks
	cfg.CheckServiceFreshness = e.CheckServiceFreshness
	cfg.CheckHostFreshness = e.CheckHostFreshness
	cfg.EnableNotifications = e.EnableNotifications
	cfg.EnableFlapDetection = e.EnableFlapDetection

	cfg.RetentionUpdateInterval = 0
	if s.Retention.Enabled {
		cfg.RetentionUpdateInterval = int(s.Retention.UpdateInterval / time.Minute)
	}
	return cfg
}
