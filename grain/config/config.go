// Package config loads grain.Options (§4.2's configuration option set)
// through viper, so a host can supply them via YAML/JSON file, environment
// variables (HSM_ prefix), or defaults, without the grain package itself
// depending on any particular configuration format.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/grainkit/actorhsm/grain"
	"github.com/grainkit/actorhsm/internal/backoffutil"
	"github.com/spf13/viper"
)

// Values is the plain-data subset of grain.Options that can be loaded from
// a structured configuration source. Collaborators (UpcastRegistry,
// StreamPublisher, Logger) are still wired in code, not configuration.
type Values struct {
	AutoConfirmEvents     bool
	PublishToStream       bool
	StreamNamespace       string
	EnableIdempotency     bool
	MaxDedupeKeysInMemory int
	EnableSnapshots       bool
	SnapshotInterval      int
	RetryInitialInterval  time.Duration
	RetryMaxElapsedTime   time.Duration
}

// defaults mirror §4.2's enumerated configuration defaults.
func defaults() Values {
	return Values{
		AutoConfirmEvents:     true,
		PublishToStream:       false,
		StreamNamespace:       "StateMachine",
		EnableIdempotency:     true,
		MaxDedupeKeysInMemory: 1000,
		EnableSnapshots:       true,
		SnapshotInterval:      100,
		RetryInitialInterval:  50 * time.Millisecond,
		RetryMaxElapsedTime:   5 * time.Second,
	}
}

// Loader wraps a *viper.Viper configured with this package's env prefix and
// defaults; callers add file sources before calling Load.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader that reads HSM_-prefixed environment variables
// (e.g. HSM_SNAPSHOTINTERVAL) over the §4.2 defaults.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("HSM")
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("autoconfirmevents", d.AutoConfirmEvents)
	v.SetDefault("publishtostream", d.PublishToStream)
	v.SetDefault("streamnamespace", d.StreamNamespace)
	v.SetDefault("enableidempotency", d.EnableIdempotency)
	v.SetDefault("maxdedupekeysinmemory", d.MaxDedupeKeysInMemory)
	v.SetDefault("enablesnapshots", d.EnableSnapshots)
	v.SetDefault("snapshotinterval", d.SnapshotInterval)
	v.SetDefault("retryinitialinterval", d.RetryInitialInterval)
	v.SetDefault("retrymaxelapsedtime", d.RetryMaxElapsedTime)

	return &Loader{v: v}
}

// AddConfigFile points the loader at a YAML or JSON file (format inferred
// from its extension, per viper convention); call before Load. Missing
// files are not an error — env vars and defaults still apply.
func (l *Loader) AddConfigFile(path string) *Loader {
	l.v.SetConfigFile(path)
	return l
}

// Load reads the configured file (if any) and returns the resolved Values.
func (l *Loader) Load() (Values, error) {
	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return Values{}, fmt.Errorf("grain/config: reading config file: %w", err)
			}
		}
	}

	return Values{
		AutoConfirmEvents:     l.v.GetBool("autoconfirmevents"),
		PublishToStream:       l.v.GetBool("publishtostream"),
		StreamNamespace:       l.v.GetString("streamnamespace"),
		EnableIdempotency:     l.v.GetBool("enableidempotency"),
		MaxDedupeKeysInMemory: l.v.GetInt("maxdedupekeysinmemory"),
		EnableSnapshots:       l.v.GetBool("enablesnapshots"),
		SnapshotInterval:      l.v.GetInt("snapshotinterval"),
		RetryInitialInterval:  l.v.GetDuration("retryinitialinterval"),
		RetryMaxElapsedTime:   l.v.GetDuration("retrymaxelapsedtime"),
	}, nil
}

// ToOptions builds a grain.Options from these resolved Values. Collaborators
// not expressible as plain configuration (UpcastRegistry, StreamPublisher,
// Logger, Clock) are left at their zero value for the caller to fill in,
// or defaulted by grain.New via Options.withDefaults.
func (v Values) ToOptions() grain.Options {
	return grain.Options{}.
		WithAutoConfirmEvents(v.AutoConfirmEvents).
		WithIdempotency(v.EnableIdempotency).
		WithSnapshots(v.EnableSnapshots).
		WithPublishToStream(v.PublishToStream).
		WithStreamNamespace(v.StreamNamespace).
		WithMaxDedupeKeysInMemory(v.MaxDedupeKeysInMemory).
		WithSnapshotInterval(v.SnapshotInterval).
		WithRetryPolicy(backoffutil.Policy{
			InitialInterval: v.RetryInitialInterval,
			MaxElapsedTime:  v.RetryMaxElapsedTime,
		})
}
