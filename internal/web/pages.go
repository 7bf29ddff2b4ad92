package web

import (
	"context"
	"errors"
	"fmt"

	"github.com/ingresounam/ingreso/internal/client"
)

var errNoSuchRecord = errors.New("no such record")

// pageLoader fills the view-specific part of a guarded view's data
type pageLoader func(ctx context.Context, api API, auth client.Auth, params map[string]string, data *viewData) error

var pageLoaders = map[string]pageLoader{
	"dashboard": loadSimulators,
	"practice":  loadSimulators,
	"simulator": loadSimulator,
	"profile":   loadProfile,
}

func loadSimulators(ctx context.Context, api API, auth client.Auth, _ map[string]string, data *viewData) error {
	sims, err := api.Simulators(ctx, auth)
	if err != nil {
		return fmt.Errorf("failed to list simulators: %w", err)
	}
	data.Simulators = sims
	return nil
}

func loadSimulator(ctx context.Context, api API, auth client.Auth, params map[string]string, data *viewData) error {
	sims, err := api.Simulators(ctx, auth)
	if err != nil {
		return fmt.Errorf("failed to list simulators: %w", err)
	}
	id := params["simulatorId"]
	for i := range sims {
		if sims[i].ID == id {
			data.Simulator = &sims[i]
			return nil
		}
	}
	return fmt.Errorf("simulator %s: %w", id, errNoSuchRecord)
}

func loadProfile(ctx context.Context, api API, auth client.Auth, _ map[string]string, data *viewData) error {
	mine, err := api.MyFeedback(ctx, auth)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}
	data.MyFeedback = mine
	return nil
}
