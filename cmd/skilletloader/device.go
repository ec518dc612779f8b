package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/newtron-network/skilletloader/pkg/device"
	"github.com/newtron-network/skilletloader/pkg/history"
	"github.com/newtron-network/skilletloader/pkg/panos"
	"github.com/newtron-network/skilletloader/pkg/settings"
	"github.com/newtron-network/skilletloader/pkg/util"
)

const (
	apiKeyEnv = "SKILLETLOADER_API_KEY"
	hostEnv   = "SKILLETLOADER_HOST"
)

// resolveHost picks the device host: flag, environment, then settings.
func resolveHost(flag string, env map[string]string, s *settings.Settings) (string, error) {
	for _, h := range []string{flag, env[hostEnv], s.DefaultHost} {
		if h != "" {
			return h, nil
		}
	}
	return "", fmt.Errorf("device required: use --host, %s or 'settings set default_host'", hostEnv)
}

// resolveAPIKey picks the API key: flag, environment, key file, then an
// interactive prompt when prompt is non-nil.
func resolveAPIKey(flag string, env map[string]string, keyFile string, prompt func() (string, error)) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if k := env[apiKeyEnv]; k != "" {
		return k, nil
	}
	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return "", fmt.Errorf("reading API key file: %w", err)
		}
		if k := strings.TrimSpace(string(data)); k != "" {
			return k, nil
		}
		return "", fmt.Errorf("API key file %s is empty", keyFile)
	}
	if prompt != nil {
		return prompt()
	}
	return "", errors.New("API key required")
}

// promptAPIKey reads the key from the terminal without echo.
func promptAPIKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("API key required: use --api-key, %s or 'settings set api_key_file'", apiKeyEnv)
	}
	fmt.Fprint(os.Stderr, "API key: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		return "", errors.New("API key required")
	}
	return key, nil
}

// connectDevice builds the XML API device from flags, environment and
// settings.
func connectDevice(env map[string]string) (*panos.Device, error) {
	host, err := resolveHost(hostName, env, userSettings)
	if err != nil {
		return nil, err
	}
	key, err := resolveAPIKey(apiKey, env, userSettings.APIKeyFile, promptAPIKey)
	if err != nil {
		return nil, err
	}
	p := port
	if p <= 0 {
		p = userSettings.GetPort()
	}
	dev := panos.NewDevice(panos.NewClient(host, p, key, insecure || userSettings.Insecure))
	dev.CommitPoll = pollOptions()
	util.WithDevice(host).Debugf("Using XML API at %s", dev.Client().BaseURL)
	return dev, nil
}

// pollOptions returns job and readiness poll bounds from settings; zero
// values fall back to the device package defaults.
func pollOptions() device.PollOptions {
	return device.PollOptions{
		Interval: userSettings.GetPollInterval(),
		Timeout:  userSettings.GetPollTimeout(),
	}
}

// openHistory opens the configured run history store.
func openHistory(ctx context.Context) (history.Store, func(), error) {
	switch userSettings.GetHistoryBackend() {
	case settings.BackendRedis:
		store, err := history.NewRedisStore(ctx, userSettings.GetRedisAddr(), userSettings.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		store, err := history.NewFileStore(userSettings.GetHistoryDir())
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}
