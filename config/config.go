// Package config reads the uploader settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/rodoku-audio/rodoku-tools/audio"
	"github.com/rodoku-audio/rodoku-tools/wavestk"
)

// Environment variables read by Load.
const (
	APIBaseURLKey        = "WAVESTK_API_BASE"
	SessionCookieKey     = "WAVESTK_SESSION_COOKIE"
	SessionCookieNameKey = "WAVESTK_SESSION_COOKIE_NAME"
	MaxAudioSizeKey      = "RODOKU_MAX_AUDIO_SIZE"
	VerifyKey            = "RODOKU_VERIFY"
	DebugKey             = "RODOKU_DEBUG"
	LanguageKey          = "RODOKU_LANG"
)

// Secret is a string that doesn't show up in logs.
type Secret string

// String ...
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "*****"
}

// Config ...
type Config struct {
	APIBaseURL        string
	SessionCookieName string
	SessionCookie     Secret
	MaxAudioSize      int64
	Verify            bool
	Debug             bool
	// Language of the progress texts, "en" or "ja".
	Language string
}

// String lists the settings with secrets redacted.
func (c Config) String() string {
	return fmt.Sprintf("api base: %s, session cookie: %s=%s, max audio size: %s, verify: %v, debug: %v",
		c.APIBaseURL, c.SessionCookieName, c.SessionCookie,
		units.BytesSize(float64(c.MaxAudioSize)), c.Verify, c.Debug)
}

// Load builds a Config from envRepo, falling back to defaults for unset values.
func Load(envRepo env.Repository) (Config, error) {
	config := Config{
		APIBaseURL:        strings.TrimSpace(envRepo.Get(APIBaseURLKey)),
		SessionCookieName: strings.TrimSpace(envRepo.Get(SessionCookieNameKey)),
		SessionCookie:     Secret(envRepo.Get(SessionCookieKey)),
		MaxAudioSize:      audio.DefaultMaxSize,
		Language:          strings.ToLower(strings.TrimSpace(envRepo.Get(LanguageKey))),
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = wavestk.DefaultAPIBaseURL
	}
	switch config.Language {
	case "":
		config.Language = "en"
	case "en", "ja":
	default:
		return Config{}, fmt.Errorf("invalid %s: %q, use en or ja", LanguageKey, config.Language)
	}
	if config.SessionCookieName == "" {
		config.SessionCookieName = wavestk.DefaultSessionCookieName
	}

	if value := strings.TrimSpace(envRepo.Get(MaxAudioSizeKey)); value != "" {
		size, err := units.RAMInBytes(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", MaxAudioSizeKey, err)
		}
		if size <= 0 {
			return Config{}, fmt.Errorf("%s should be greater than 0", MaxAudioSizeKey)
		}
		config.MaxAudioSize = size
	}

	var err error
	if config.Verify, err = parseBool(envRepo, VerifyKey); err != nil {
		return Config{}, err
	}
	if config.Debug, err = parseBool(envRepo, DebugKey); err != nil {
		return Config{}, err
	}

	return config, nil
}

// LoadDotEnv copies the variables of a .env style file into envRepo.
// Variables already set keep their value. A missing file is not an error unless required is set.
func LoadDotEnv(envRepo env.Repository, path string, required bool) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	for key, value := range values {
		if envRepo.Get(key) != "" {
			continue
		}
		if err := envRepo.Set(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func parseBool(envRepo env.Repository, key string) (bool, error) {
	value := strings.ToLower(strings.TrimSpace(envRepo.Get(key)))
	switch value {
	case "":
		return false, nil
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q is not a boolean", key, value)
	}
	return b, nil
}
