package obs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andreykaipov/goobs"
	"github.com/andreykaipov/goobs/api/requests/config"
	"github.com/andreykaipov/goobs/api/requests/inputs"
	"github.com/andreykaipov/goobs/api/requests/mediainputs"
	"github.com/andreykaipov/goobs/api/requests/outputs"
	"github.com/andreykaipov/goobs/api/requests/record"
	"github.com/andreykaipov/goobs/api/requests/sceneitems"
	"github.com/andreykaipov/goobs/api/requests/scenes"
	"github.com/andreykaipov/goobs/api/requests/stream"
	"github.com/andreykaipov/goobs/api/typedefs"
)

// VideoSettings mirrors GetVideoSettings / SetVideoSettings.
type VideoSettings struct {
	FPSNumerator   int `json:"fpsNumerator"`
	FPSDenominator int `json:"fpsDenominator"`
	BaseWidth      int `json:"baseWidth"`
	BaseHeight     int `json:"baseHeight"`
	OutputWidth    int `json:"outputWidth"`
	OutputHeight   int `json:"outputHeight"`
}

// Scene is an entry of GetSceneList.
type Scene struct {
	Name  string `json:"sceneName"`
	Index int    `json:"sceneIndex"`
}

// Input is an entry of GetInputList.
type Input struct {
	Name string `json:"inputName"`
	Kind string `json:"inputKind"`
}

// InputSettings is the result of GetInputSettings.
type InputSettings struct {
	Name     string         `json:"-"`
	Kind     string         `json:"inputKind"`
	Settings map[string]any `json:"inputSettings"`
}

// Transform is a scene item transform keyed by obs-websocket field name.
type Transform map[string]any

// Media states reported by GetMediaInputStatus.
const (
	MediaStatePlaying = "OBS_MEDIA_STATE_PLAYING"
)

// GetVideoSettings returns the current canvas and output settings.
func (c *Client) GetVideoSettings(ctx context.Context) (VideoSettings, error) {
	return request(ctx, c, "GetVideoSettings", func(g *goobs.Client) (VideoSettings, error) {
		resp, err := g.Config.GetVideoSettings(&config.GetVideoSettingsParams{})
		if err != nil {
			return VideoSettings{}, err
		}
		return VideoSettings{
			FPSNumerator:   int(resp.FpsNumerator),
			FPSDenominator: int(resp.FpsDenominator),
			BaseWidth:      int(resp.BaseWidth),
			BaseHeight:     int(resp.BaseHeight),
			OutputWidth:    int(resp.OutputWidth),
			OutputHeight:   int(resp.OutputHeight),
		}, nil
	})
}

// SetVideoSettings applies canvas, output and frame rate settings.
func (c *Client) SetVideoSettings(ctx context.Context, vs VideoSettings) error {
	params := config.NewSetVideoSettingsParams().
		WithFpsNumerator(float64(vs.FPSNumerator)).
		WithFpsDenominator(float64(vs.FPSDenominator)).
		WithBaseWidth(float64(vs.BaseWidth)).
		WithBaseHeight(float64(vs.BaseHeight)).
		WithOutputWidth(float64(vs.OutputWidth)).
		WithOutputHeight(float64(vs.OutputHeight))
	return c.call(ctx, "SetVideoSettings", func(g *goobs.Client) error {
		_, err := g.Config.SetVideoSettings(params)
		return err
	})
}

// GetSceneList returns all scenes.
func (c *Client) GetSceneList(ctx context.Context) ([]Scene, error) {
	return request(ctx, c, "GetSceneList", func(g *goobs.Client) ([]Scene, error) {
		resp, err := g.Scenes.GetSceneList(&scenes.GetSceneListParams{})
		if err != nil {
			return nil, err
		}
		list := make([]Scene, 0, len(resp.Scenes))
		for _, s := range resp.Scenes {
			list = append(list, Scene{Name: s.SceneName, Index: s.SceneIndex})
		}
		return list, nil
	})
}

// CreateScene creates an empty scene.
func (c *Client) CreateScene(ctx context.Context, name string) error {
	return c.call(ctx, "CreateScene", func(g *goobs.Client) error {
		_, err := g.Scenes.CreateScene(scenes.NewCreateSceneParams().WithSceneName(name))
		return err
	})
}

// SetCurrentProgramScene switches the program output to name.
func (c *Client) SetCurrentProgramScene(ctx context.Context, name string) error {
	return c.call(ctx, "SetCurrentProgramScene", func(g *goobs.Client) error {
		_, err := g.Scenes.SetCurrentProgramScene(scenes.NewSetCurrentProgramSceneParams().WithSceneName(name))
		return err
	})
}

// GetInputList returns every input known to OBS.
func (c *Client) GetInputList(ctx context.Context) ([]Input, error) {
	return request(ctx, c, "GetInputList", func(g *goobs.Client) ([]Input, error) {
		resp, err := g.Inputs.GetInputList(&inputs.GetInputListParams{})
		if err != nil {
			return nil, err
		}
		list := make([]Input, 0, len(resp.Inputs))
		for _, in := range resp.Inputs {
			list = append(list, Input{Name: in.InputName, Kind: in.InputKind})
		}
		return list, nil
	})
}

// GetInputSettings returns the settings of an input. A missing input yields
// a *RequestError for which IsNotFound is true.
func (c *Client) GetInputSettings(ctx context.Context, name string) (*InputSettings, error) {
	return request(ctx, c, "GetInputSettings", func(g *goobs.Client) (*InputSettings, error) {
		resp, err := g.Inputs.GetInputSettings(inputs.NewGetInputSettingsParams().WithInputName(name))
		if err != nil {
			return nil, err
		}
		in := &InputSettings{Name: name, Kind: resp.InputKind, Settings: resp.InputSettings}
		if in.Settings == nil {
			in.Settings = map[string]any{}
		}
		return in, nil
	})
}

// SetInputSettings patches (overlay=true) or replaces an input's settings.
func (c *Client) SetInputSettings(ctx context.Context, name string, settings map[string]any, overlay bool) error {
	params := inputs.NewSetInputSettingsParams().
		WithInputName(name).
		WithInputSettings(settings).
		WithOverlay(overlay)
	return c.call(ctx, "SetInputSettings", func(g *goobs.Client) error {
		_, err := g.Inputs.SetInputSettings(params)
		return err
	})
}

// CreateInput creates an input inside scene and returns its scene item id.
func (c *Client) CreateInput(ctx context.Context, scene, name, kind string, settings map[string]any, enabled bool) (int, error) {
	params := inputs.NewCreateInputParams().
		WithSceneName(scene).
		WithInputName(name).
		WithInputKind(kind).
		WithInputSettings(settings).
		WithSceneItemEnabled(enabled)
	return request(ctx, c, "CreateInput", func(g *goobs.Client) (int, error) {
		resp, err := g.Inputs.CreateInput(params)
		if err != nil {
			return 0, err
		}
		return resp.SceneItemId, nil
	})
}

// RemoveInput deletes an input and all of its scene items.
func (c *Client) RemoveInput(ctx context.Context, name string) error {
	return c.call(ctx, "RemoveInput", func(g *goobs.Client) error {
		_, err := g.Inputs.RemoveInput(inputs.NewRemoveInputParams().WithInputName(name))
		return err
	})
}

// GetSceneItemID looks up the scene item showing source in scene.
func (c *Client) GetSceneItemID(ctx context.Context, scene, source string) (int, error) {
	params := sceneitems.NewGetSceneItemIdParams().
		WithSceneName(scene).
		WithSourceName(source)
	return request(ctx, c, "GetSceneItemId", func(g *goobs.Client) (int, error) {
		resp, err := g.SceneItems.GetSceneItemId(params)
		if err != nil {
			return 0, err
		}
		return resp.SceneItemId, nil
	})
}

// GetSceneItemTransform returns the transform of a scene item.
func (c *Client) GetSceneItemTransform(ctx context.Context, scene string, itemID int) (Transform, error) {
	return request(ctx, c, "GetSceneItemTransform", func(g *goobs.Client) (Transform, error) {
		return currentTransform(g, scene, itemID)
	})
}

func currentTransform(g *goobs.Client, scene string, itemID int) (Transform, error) {
	resp, err := g.SceneItems.GetSceneItemTransform(sceneitems.NewGetSceneItemTransformParams().
		WithSceneName(scene).
		WithSceneItemId(itemID))
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(resp.SceneItemTransform)
	if err != nil {
		return nil, err
	}
	t := Transform{}
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetSceneItemTransform applies a partial transform to a scene item. The keys
// in t are laid over the item's current transform before it is sent back.
func (c *Client) SetSceneItemTransform(ctx context.Context, scene string, itemID int, t Transform) error {
	return c.call(ctx, "SetSceneItemTransform", func(g *goobs.Client) error {
		merged, err := currentTransform(g, scene, itemID)
		if err != nil {
			return err
		}
		for k, v := range t {
			merged[k] = v
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		var full typedefs.SceneItemTransform
		if err := json.Unmarshal(raw, &full); err != nil {
			return fmt.Errorf("decoding transform: %w", err)
		}

		params := sceneitems.NewSetSceneItemTransformParams().
			WithSceneName(scene).
			WithSceneItemId(itemID)
		params.SceneItemTransform = &full
		_, err = g.SceneItems.SetSceneItemTransform(params)
		return err
	})
}

// SetSceneItemIndex moves a scene item in the z-order. Index 0 is the bottom.
func (c *Client) SetSceneItemIndex(ctx context.Context, scene string, itemID, index int) error {
	params := sceneitems.NewSetSceneItemIndexParams().
		WithSceneName(scene).
		WithSceneItemId(itemID).
		WithSceneItemIndex(index)
	return c.call(ctx, "SetSceneItemIndex", func(g *goobs.Client) error {
		_, err := g.SceneItems.SetSceneItemIndex(params)
		return err
	})
}

// SetSceneItemLocked locks or unlocks a scene item in the OBS editor.
func (c *Client) SetSceneItemLocked(ctx context.Context, scene string, itemID int, locked bool) error {
	params := sceneitems.NewSetSceneItemLockedParams().
		WithSceneName(scene).
		WithSceneItemId(itemID).
		WithSceneItemLocked(locked)
	return c.call(ctx, "SetSceneItemLocked", func(g *goobs.Client) error {
		_, err := g.SceneItems.SetSceneItemLocked(params)
		return err
	})
}

// GetMediaInputState returns the media state of a media input.
func (c *Client) GetMediaInputState(ctx context.Context, name string) (string, error) {
	return request(ctx, c, "GetMediaInputStatus", func(g *goobs.Client) (string, error) {
		resp, err := g.MediaInputs.GetMediaInputStatus(mediainputs.NewGetMediaInputStatusParams().WithInputName(name))
		if err != nil {
			return "", err
		}
		return resp.MediaState, nil
	})
}

// StreamActive reports whether the stream output is running.
func (c *Client) StreamActive(ctx context.Context) (bool, error) {
	return request(ctx, c, "GetStreamStatus", func(g *goobs.Client) (bool, error) {
		resp, err := g.Stream.GetStreamStatus(&stream.GetStreamStatusParams{})
		if err != nil {
			return false, err
		}
		return resp.OutputActive, nil
	})
}

// RecordActive reports whether recording is running.
func (c *Client) RecordActive(ctx context.Context) (bool, error) {
	return request(ctx, c, "GetRecordStatus", func(g *goobs.Client) (bool, error) {
		resp, err := g.Record.GetRecordStatus(&record.GetRecordStatusParams{})
		if err != nil {
			return false, err
		}
		return resp.OutputActive, nil
	})
}

// VirtualCamActive reports whether the virtual camera is running.
func (c *Client) VirtualCamActive(ctx context.Context) (bool, error) {
	return request(ctx, c, "GetVirtualCamStatus", func(g *goobs.Client) (bool, error) {
		resp, err := g.Outputs.GetVirtualCamStatus(&outputs.GetVirtualCamStatusParams{})
		if err != nil {
			return false, err
		}
		return resp.OutputActive, nil
	})
}

// StartStream starts the stream output.
func (c *Client) StartStream(ctx context.Context) error {
	return c.call(ctx, "StartStream", func(g *goobs.Client) error {
		_, err := g.Stream.StartStream(&stream.StartStreamParams{})
		return err
	})
}

// StopStream stops the stream output.
func (c *Client) StopStream(ctx context.Context) error {
	return c.call(ctx, "StopStream", func(g *goobs.Client) error {
		_, err := g.Stream.StopStream(&stream.StopStreamParams{})
		return err
	})
}
