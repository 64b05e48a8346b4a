// Package botdetect flags automated form submissions from honeypot and timing
// signals collected by the form.
package botdetect

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Signal is the honeypot block posted with a form.
type Signal struct {
	Website        string   `json:"website"`
	TimeSpent      *float64 `json:"timeSpent,omitempty"`
	UserInteracted *bool    `json:"userInteracted,omitempty"`
	FieldFillOrder []string `json:"fieldFillOrder,omitempty"`
}

// Reason identifies the heuristic that rejected a submission. It is logged,
// never returned to the client.
type Reason string

const (
	ReasonHoneypot      Reason = "honeypot_filled"
	ReasonTooFast       Reason = "too_fast"
	ReasonNoInteraction Reason = "no_interaction"
	ReasonScriptedOrder Reason = "scripted_order"
)

// Profile is a versioned canonical field order of a form. The scripted-order
// heuristic only matches bots while this mirrors the rendered form.
type Profile struct {
	Version    string
	FieldOrder []string
}

// MaxVersionLength matches the form_version column.
const MaxVersionLength = 32

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Version) == "" {
		return fmt.Errorf("form profile version is required")
	}
	if utf8.RuneCountInString(p.Version) > MaxVersionLength {
		return fmt.Errorf("form profile version must be at most %d characters", MaxVersionLength)
	}
	seen := make(map[string]struct{}, len(p.FieldOrder))
	for _, f := range p.FieldOrder {
		if f == "" {
			return fmt.Errorf("form profile %s: empty field name", p.Version)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("form profile %s: duplicate field %q", p.Version, f)
		}
		seen[f] = struct{}{}
	}
	return nil
}

// Config tunes the timing heuristics.
type Config struct {
	MinTimeSpent       time.Duration
	ScriptedFillWindow time.Duration
	MinOrderLength     int
}

func DefaultConfig() Config {
	return Config{
		MinTimeSpent:       2 * time.Second,
		ScriptedFillWindow: 10 * time.Second,
		MinOrderLength:     5,
	}
}

// Detector evaluates signals against the current form profile. The profile
// can be replaced while requests are in flight.
type Detector struct {
	cfg     Config
	profile atomic.Pointer[Profile]
}

func New(cfg Config, profile Profile) (*Detector, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{cfg: cfg}
	d.store(profile)
	return d, nil
}

// SetProfile swaps the canonical field order.
func (d *Detector) SetProfile(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d.store(p)
	return nil
}

func (d *Detector) Profile() Profile {
	return *d.profile.Load()
}

func (d *Detector) store(p Profile) {
	p.FieldOrder = slices.Clone(p.FieldOrder)
	d.profile.Store(&p)
}

// Evaluate returns the first heuristic that flags sig, or ok=false for a
// submission that looks human.
func (d *Detector) Evaluate(sig Signal) (Reason, bool) {
	if strings.TrimSpace(sig.Website) != "" {
		return ReasonHoneypot, true
	}

	if sig.TimeSpent != nil && *sig.TimeSpent < millis(d.cfg.MinTimeSpent) {
		return ReasonTooFast, true
	}

	if sig.UserInteracted != nil && !*sig.UserInteracted {
		return ReasonNoInteraction, true
	}

	if len(sig.FieldFillOrder) >= d.cfg.MinOrderLength && sig.TimeSpent != nil &&
		*sig.TimeSpent < millis(d.cfg.ScriptedFillWindow) {
		if slices.Equal(sig.FieldFillOrder, d.profile.Load().FieldOrder) {
			return ReasonScriptedOrder, true
		}
	}

	return "", false
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
