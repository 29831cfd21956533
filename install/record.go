// Package install keeps track of what was provisioned by the current process.
package install

import (
	"context"
	"sync"

	"github.com/im7mortal/kmutex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fornellas/slogxt/log"
)

// Install results, as reported by the roam_install_total metric.
const (
	ResultInstalled = "installed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

var installTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "roam_install_total",
	Help: "Number of install requests, by result.",
}, []string{"result"})

// Record maps content fingerprints to the name they were installed as. It lives only as long
// as the process (or agent) holding it, and entries are never removed.
type Record struct {
	kmutex    *kmutex.Kmutex
	mu        sync.Mutex
	installed map[string]string
}

func NewRecord() *Record {
	return &Record{
		kmutex:    kmutex.New(),
		installed: map[string]string{},
	}
}

// Lock blocks until no one else holds fingerprint, and returns the function to release it.
func (r *Record) Lock(fingerprint string) func() {
	r.kmutex.Lock(fingerprint)
	return func() { r.kmutex.Unlock(fingerprint) }
}

// Lookup returns the name fingerprint was installed as.
func (r *Record) Lookup(fingerprint string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.installed[fingerprint]
	return name, ok
}

// Set records fingerprint as installed with name, replacing any previous entry.
func (r *Record) Set(fingerprint, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installed[fingerprint] = name
}

// Len returns the number of recorded fingerprints.
func (r *Record) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.installed)
}

// Do calls install while holding fingerprint, and records fingerprint as name once it succeeds.
// When fingerprint is already recorded and force is false, install is not called and Do
// reports it was skipped. Concurrent calls for the same fingerprint wait for each other.
func (r *Record) Do(
	ctx context.Context, fingerprint, name string, force bool, install func(ctx context.Context) error,
) (bool, error) {
	logger := log.MustLogger(ctx)

	unlock := r.Lock(fingerprint)
	defer unlock()

	if installedName, ok := r.Lookup(fingerprint); ok && !force {
		logger.Info("Already installed, skipping", "fingerprint", fingerprint, "installed_name", installedName)
		installTotal.WithLabelValues(ResultSkipped).Inc()
		return true, nil
	}

	if err := install(ctx); err != nil {
		installTotal.WithLabelValues(ResultFailed).Inc()
		return false, err
	}

	r.Set(fingerprint, name)
	installTotal.WithLabelValues(ResultInstalled).Inc()
	return false, nil
}
