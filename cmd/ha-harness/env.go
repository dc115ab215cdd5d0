package main

import (
	"context"
	"fmt"
	"time"

	"github.com/TheTarry/ha-harness/pkg/compose"
	"github.com/TheTarry/ha-harness/pkg/config"
	"github.com/TheTarry/ha-harness/pkg/hass"
	"github.com/TheTarry/ha-harness/pkg/timemachine"
)

// stateFileName is written by `up` in the working directory so later
// invocations can reattach to the running environment.
const stateFileName = ".ha-harness-state.json"

func loadConfig() (*config.Harness, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// attachManager binds to the environment described by the state file.
func attachManager(cfg *config.Harness) (*compose.Manager, error) {
	st, err := compose.LoadState(stateFileName)
	if err != nil {
		return nil, fmt.Errorf("no running environment found (run `ha-harness up` first): %w", err)
	}
	return compose.Attach(compose.Config{Harness: cfg}, st)
}

// newHassClient builds a Home Assistant client for the running environment.
// With a refresh token configured it uses token exchange, which survives time
// jumps; otherwise it falls back to the long-lived token the container
// publishes at startup.
func newHassClient(ctx context.Context, mgr *compose.Manager, cfg *config.Harness, observer func(status int)) (*hass.Client, error) {
	baseURL, err := mgr.URL(compose.ServiceHomeAssistant)
	if err != nil {
		return nil, err
	}

	var auth *hass.AuthManager
	if cfg.RefreshToken != "" {
		auth = hass.NewAuthManager(baseURL, cfg.RefreshToken)
	} else {
		token, err := mgr.ReadContainerFile(ctx, compose.ServiceHomeAssistant, compose.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("no refresh token configured and no access token published by the container: %w", err)
		}
		auth = hass.NewStaticAuthManager(token)
	}

	return hass.New(hass.Config{
		BaseURL:  baseURL,
		Auth:     auth,
		Observer: observer,
	})
}

// newTimeMachine wires the time engine to the running environment: the sink
// writes the libfaketime file, the oracle and token refresh hook go through
// the Home Assistant API. Any override applied by a previous invocation is
// read back from the container so the engine resumes from it.
func newTimeMachine(ctx context.Context, mgr *compose.Manager, client *hass.Client, strict bool, onApply func()) (*timemachine.TimeMachine, error) {
	var hooks []timemachine.Hook
	if client != nil {
		hooks = append(hooks, client.TokenRefreshHook())
	}
	if onApply != nil {
		hooks = append(hooks, timemachine.HookFunc(onApply))
	}
	hook := combineHooks(hooks)

	cfg := timemachine.Config{
		Sink:          mgr.TimeSink(),
		Hook:          hook,
		StrictForward: strict,
	}
	if client != nil {
		cfg.Oracle = client
	}
	tm, err := timemachine.New(cfg)
	if err != nil {
		return nil, err
	}

	if value, err := mgr.ReadContainerFile(ctx, compose.ServiceHomeAssistant, compose.FaketimeFile); err == nil {
		if current, perr := time.Parse(timemachine.Layout, value); perr == nil {
			if serr := tm.SetAbsolute(ctx, current); serr != nil {
				return nil, fmt.Errorf("failed to resume logical time %q: %w", value, serr)
			}
		}
	}
	return tm, nil
}

func combineHooks(hooks []timemachine.Hook) timemachine.Hook {
	switch len(hooks) {
	case 0:
		return nil
	case 1:
		return hooks[0]
	default:
		return timemachine.HookFunc(func() {
			for _, h := range hooks {
				h.OnTimeSet()
			}
		})
	}
}
