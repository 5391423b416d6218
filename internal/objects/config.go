package objects

import "time"

// Config holds engine-wide settings and the global runtime toggles that
// external commands may flip at runtime.
type Config struct {
	IntervalLength           int // seconds per interval unit, default 60
	MaxServiceCheckSpread    int // minutes
	MaxHostCheckSpread       int
	MaxParallelServiceChecks int // 0 = unlimited
	MaxConcurrentChecks      int // executor worker pool size
	ServiceCheckTimeout      int // seconds
	HostCheckTimeout         int
	ServiceCheckTimeoutState int
	CheckReaperInterval      int // seconds
	MaxCheckReaperTime       int // seconds a single reaper pass may run

	ServiceFreshnessCheckInterval int
	HostFreshnessCheckInterval    int
	AdditionalFreshnessLatency    int
	RetentionUpdateInterval       int // minutes, 0 disables periodic saves
	AutoReschedulingInterval      int
	AutoReschedulingEnabled       bool
	OrphanCheckInterval           int

	LowServiceFlapThreshold  float64
	HighServiceFlapThreshold float64
	LowHostFlapThreshold     float64
	HighHostFlapThreshold    float64
	// FlapWeightDecay is the per-sample decay of the exponentially weighted
	// percent-state-change. 0 weighs every history slot equally.
	FlapWeightDecay float64

	NewlinesAreEscaped           bool
	HostDownDisableServiceChecks bool
	UserMacros                   [256]string

	// Runtime toggles
	ExecuteServiceChecks       bool
	ExecuteHostChecks          bool
	AcceptPassiveServiceChecks bool
	AcceptPassiveHostChecks    bool
	CheckServiceFreshness      bool
	CheckHostFreshness         bool
	EnableNotifications        bool
	EnableFlapDetection        bool
	SoftStateDependencies      bool

	// ModAttr* bits for the global toggles, per object kind.
	ModifiedHostAttributes    uint64
	ModifiedServiceAttributes uint64

	// Runtime counters
	ProgramStart       time.Time
	NextEventID        uint64
	NextProblemID      uint64
	NextNotificationID uint64
}

// DefaultConfig returns a Config with the stock engine defaults.
func DefaultConfig() *Config {
	return &Config{
		IntervalLength:                60,
		MaxServiceCheckSpread:         30,
		MaxHostCheckSpread:            30,
		MaxConcurrentChecks:           64,
		ServiceCheckTimeout:           60,
		HostCheckTimeout:              30,
		ServiceCheckTimeoutState:      ServiceUnknown,
		CheckReaperInterval:           10,
		MaxCheckReaperTime:            30,
		ServiceFreshnessCheckInterval: 60,
		HostFreshnessCheckInterval:    60,
		AdditionalFreshnessLatency:    15,
		RetentionUpdateInterval:       60,
		AutoReschedulingInterval:      30,
		OrphanCheckInterval:           60,
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
		CheckHostFreshness:            false,
		EnableNotifications:           true,
		EnableFlapDetection:           true,
		NextEventID:                   1,
		NextProblemID:                 1,
		NextNotificationID:            1,
	}
}

// NextEvent returns and advances the state-change event id.
func (cfg *Config) NextEvent() uint64 {
	id := cfg.NextEventID
	cfg.NextEventID++
	return id
}

// NextProblem returns and advances the problem id.
func (cfg *Config) NextProblem() uint64 {
	id := cfg.NextProblemID
	cfg.NextProblemID++
	return id
}

// NextNotification returns and advances the notification id.
func (cfg *Config) NextNotification() uint64 {
	id := cfg.NextNotificationID
	cfg.NextNotificationID++
	return id
}
