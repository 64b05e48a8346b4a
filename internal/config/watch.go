package config

import (
	"context"
	"strings"

	"finlern/internal/botdetect"
	"finlern/internal/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ProfileSetter receives form profile updates.
type ProfileSetter interface {
	SetProfile(p botdetect.Profile) error
}

// WatchFormProfile reloads bot.form_version and bot.field_order whenever the
// config file changes and hands the new profile to target. Other settings
// require a restart. It does nothing when no config file was read.
func WatchFormProfile(v *viper.Viper, target ProfileSetter, logger logging.Logger) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("config")

	v.OnConfigChange(func(e fsnotify.Event) {
		ReloadFormProfile(v, e, target, logger)
	})
	v.WatchConfig()
	return true
}

// ReloadFormProfile applies the form profile currently held by v. An invalid
// profile is logged and the previous one stays active.
func ReloadFormProfile(v *viper.Viper, e fsnotify.Event, target ProfileSetter, logger logging.Logger) {
	ctx := context.Background()
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}

	p := botdetect.Profile{
		Version:    strings.TrimSpace(v.GetString("bot.form_version")),
		FieldOrder: v.GetStringSlice("bot.field_order"),
	}
	if err := target.SetProfile(p); err != nil {
		logger.Warn(ctx, err, "form profile rejected", "file", e.Name)
		return
	}
	logger.Info(ctx, "form profile reloaded", "version", p.Version, "fields", len(p.FieldOrder))
}

var secretKeys = []string{"password", "secret", "api_key", "hash"}

// Redacted returns the effective settings of v with secrets masked.
func Redacted(v *viper.Viper) map[string]any {
	return redact(v.AllSettings())
}

func redact(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		if nested, ok := val.(map[string]any); ok {
			out[k] = redact(nested)
			continue
		}
		out[k] = val
		for _, s := range secretKeys {
			if strings.Contains(k, s) {
				if str, ok := val.(string); !ok || str != "" {
					out[k] = "********"
				}
				break
			}
		}
	}
	return out
}
