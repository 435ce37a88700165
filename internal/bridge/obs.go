package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/printcast/internal/obs"
)

func (b *Bridge) runOBS(ctx context.Context) {
	if err := b.obs.Run(ctx); err != nil {
		b.Shutdown("OBS authentication failed", fmt.Errorf("%w: %w", ErrOBSAuth, err))
	}
}

// onOBSConnect runs once per identified session. Either the scene is dumped
// and the process exits, or the overlay is provisioned and handed to the
// projector.
func (b *Bridge) onOBSConnect(ctx context.Context) {
	b.logger.Info("connected to OBS")

	if b.cfg.App.PrintSceneItemsAndExit {
		if err := b.printSceneItems(ctx); err != nil {
			if sessionEnded(ctx, err) {
				return
			}
			b.Shutdown("reading OBS scene items failed", err)
			return
		}
		b.Shutdown("scene items printed", nil)
		return
	}

	handles, err := b.render.Provision(ctx, b.layout)
	if err != nil {
		if sessionEnded(ctx, err) {
			b.logger.Debug("overlay provisioning interrupted", "error", err)
			return
		}
		b.Shutdown("failed to initialise OBS inputs, is OBS set up correctly?", err)
		return
	}
	b.projector.SetHandles(handles)
	b.logger.Info("overlay ready", "scene", b.cfg.OBS.Scene)

	if !b.cfg.OBS.StartStreamOnStartup {
		return
	}
	active, err := b.render.StreamActive(ctx)
	if err != nil {
		if !sessionEnded(ctx, err) {
			b.logger.Warn("reading stream status", "error", err)
		}
		return
	}
	if active {
		return
	}
	if err := b.render.StartStream(ctx); err != nil {
		if !sessionEnded(ctx, err) {
			b.logger.Warn("starting stream", "error", err)
		}
		return
	}
	b.logger.Info("stream started")
}

func (b *Bridge) onOBSDisconnect(info obs.DisconnectInfo) {
	b.projector.ClearHandles()

	if info.Code == obs.CloseAuthenticationFailed {
		b.Shutdown("OBS authentication failed, check the obs password", ErrOBSAuth)
		return
	}
	b.logger.Warn("OBS disconnected", "code", info.Code, "reason", info.Reason, "error", info.Err)
	if b.cfg.App.ExitOnOBSDisconnect {
		b.Shutdown("OBS disconnected", ErrOBSDisconnected)
		return
	}
	b.logger.Warn("waiting for OBS reconnection")
}

func (b *Bridge) printSceneItems(ctx context.Context) error {
	inv, err := b.render.Inventory(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding scene items: %w", err)
	}
	if _, err := fmt.Fprintln(b.out, string(data)); err != nil {
		return fmt.Errorf("writing scene items: %w", err)
	}
	return nil
}

// sessionEnded reports whether err only means the OBS session or the
// process is going away.
func sessionEnded(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, obs.ErrClosed) ||
		errors.Is(err, obs.ErrNotConnected)
}
