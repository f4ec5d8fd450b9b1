package device

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// UpdateOptions configures one firmware update.
type UpdateOptions struct {
	// Target selects the management controller performing the update.
	Target Target

	// Components restricts the update to specific firmware inventory
	// URIs. Empty lets the controller apply the whole bundle.
	Components []string

	// Force applies the bundle even when the controller considers the
	// installed version identical.
	Force bool

	// Timeout and Interval override the task monitoring defaults when
	// non-zero.
	Timeout  time.Duration
	Interval time.Duration
}

// updateParameters is the UpdateParameters part of the multipart push.
type updateParameters struct {
	Targets        []string `json:"Targets,omitempty"`
	ForceUpdate    bool     `json:"ForceUpdate"`
	OemStagingMode string   `json:"OemStagingMode,omitempty"`
}

// UpdateFirmware pushes a bundle to the selected controller and
// supervises the resulting task. Secondary-controller updates first
// stage the bundle on the host OS, since the secondary controller only
// reaches storage through the host.
//
// Unlike the task monitor on its own, a firmware update only reports
// success when the task actually reached Completed: an update assumed to
// have finished in the background is not a verified update.
func (c *Controller) UpdateFirmware(ctx context.Context, bundlePath string, opts UpdateOptions) (ok bool, err error) {
	start := c.startOp("update_firmware")
	defer func() { c.finishOp("update_firmware", start, ok) }()

	call, err := c.caller("update_firmware", opts.Target)
	if err != nil {
		return false, err
	}

	if opts.Target == TargetSecondary {
		if c.runner == nil {
			return false, configErr(c.name, "update_firmware", "secondary update requires a host OS endpoint")
		}
		if c.dev.StagingDir == "" {
			return false, configErr(c.name, "update_firmware", "secondary update requires a staging directory")
		}
		if !c.runner.TransferFiles(ctx, []string{bundlePath}, c.dev.StagingDir, nil, false) {
			return false, nil
		}
	}

	params := updateParameters{
		Targets:     opts.Components,
		ForceUpdate: opts.Force,
	}

	c.metrics.ActionIssued(c.name, "firmware_upload", string(opts.Target))
	uploadOK, payload := call.UploadMultipart(ctx, updateMultipartPath, bundlePath, params)
	if !uploadOK {
		log.Error().
			Str("device", c.name).
			Str("bundle", bundlePath).
			Msg("firmware upload failed")
		return false, nil
	}
	if msg, bad := payload.EmbeddedError(); bad {
		log.Error().
			Str("device", c.name).
			Str("bundle", bundlePath).
			Str("remote_error", msg).
			Msg("firmware upload rejected")
		return false, nil
	}

	taskURI := taskURIFromPayload(payload)
	if taskURI == "" {
		log.Error().
			Str("device", c.name).
			Msg("upload response carried no task reference")
		return false, nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.defaults.TaskTimeout.Std()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = c.defaults.TaskPollInterval.Std()
	}

	monitorOK, final := c.monitorTask(ctx, call, taskURI, timeout, interval)
	if !monitorOK {
		return false, nil
	}
	if final.String("TaskState") != TaskStateCompleted {
		log.Error().
			Str("device", c.name).
			Str("task", taskURI).
			Str("state", final.String("TaskState")).
			Msg("firmware task did not complete within the update window")
		return false, nil
	}

	log.Info().
		Str("device", c.name).
		Str("bundle", bundlePath).
		Str("target", string(opts.Target)).
		Msg("firmware update completed")
	return true, nil
}

// FirmwareInventory lists the firmware component names the selected
// controller exposes, sorted for stable output. The boolean is the
// transport verdict, distinguishing an empty inventory from an
// unreachable controller.
func (c *Controller) FirmwareInventory(ctx context.Context, target Target) ([]string, bool, error) {
	call, err := c.caller("firmware_inventory", target)
	if err != nil {
		return nil, false, err
	}

	ok, payload := call.Call(ctx, http.MethodGet, inventoryPath, nil)
	if !ok {
		return nil, false, nil
	}

	members, _ := payload["Members"].([]any)
	names := make([]string, 0, len(members))
	for _, member := range members {
		m, _ := member.(map[string]any)
		if uri, ok := m["@odata.id"].(string); ok && uri != "" {
			names = append(names, componentName(uri))
		}
	}
	sort.Strings(names)
	return names, true, nil
}

// componentName strips the collection prefix from an inventory URI.
func componentName(uri string) string {
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] == '/' {
			return uri[i+1:]
		}
	}
	return uri
}
