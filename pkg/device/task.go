package device

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openrack/trayctl/pkg/telemetry"
	"github.com/openrack/trayctl/pkg/transports/redfish"
)

// Task states reported by the controller's task service.
const (
	TaskStateRunning   = "Running"
	TaskStateCompleted = "Completed"
	TaskStateException = "Exception"
)

// monitorTask polls a task URI until it reaches a terminal state or the
// timeout elapses. It returns the transport-level verdict plus the last
// payload observed; callers that need a definitive completion must also
// check the final TaskState.
//
// A timeout with the task still running is reported as success with a
// warning: long firmware tasks routinely finish in the background after
// the supervising session has moved on, and failing the whole
// provisioning run for a slow-but-healthy task costs more than letting
// the subsequent verification step catch a genuinely wedged one.
func (c *Controller) monitorTask(ctx context.Context, call Caller, taskURI string, timeout, interval time.Duration) (bool, redfish.Payload) {
	deadline := time.Now().Add(timeout)
	var last redfish.Payload

	for {
		c.metrics.PollCycle(c.name, "task")

		ok, payload := call.Call(ctx, http.MethodGet, taskURI, nil)
		if ok {
			last = payload
			state := payload.String("TaskState")
			percent := payload.Float("PercentComplete")

			log.Debug().
				Str("device", c.name).
				Str("task", taskURI).
				Str("state", state).
				Float64("percent", percent).
				Msg("task poll")

			switch state {
			case TaskStateCompleted:
				return true, payload
			case TaskStateException:
				log.Error().
					Str("device", c.name).
					Str("task", taskURI).
					Msg("task ended in exception state")
				return false, payload
			}
		} else {
			// Controllers reset mid-update; a failed poll is not a failed
			// task. Keep polling until the deadline.
			log.Warn().
				Str("device", c.name).
				Str("task", taskURI).
				Msg("task poll failed, retrying")
		}

		if time.Now().After(deadline) || ctx.Err() != nil {
			log.Warn().
				Str("device", c.name).
				Str("task", taskURI).
				Str("last_state", last.String("TaskState")).
				Msg("task monitor timed out, assuming background completion")

			c.metrics.MonitorTimeout(c.name)
			c.events.Publish(telemetry.Event{
				Type:    telemetry.EventTypeMonitorTimeout,
				Device:  c.name,
				Level:   telemetry.EventLevelWarning,
				Message: "task monitor timed out with task not terminal",
				Data:    map[string]any{"task": taskURI, "last_state": last.String("TaskState")},
			})
			return true, last
		}

		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}
}

// taskURIFromPayload extracts the task URI from an update-service
// response. Controllers answer with either a full task resource or a
// bare numeric Id.
func taskURIFromPayload(payload redfish.Payload) string {
	if uri := payload.String("@odata.id"); strings.Contains(uri, "/Tasks/") {
		return uri
	}
	if id := payload.String("Id"); id != "" {
		return taskPath + "/" + id
	}
	if id := payload.Float("Id"); id != 0 {
		return taskPath + "/" + strconv.Itoa(int(id))
	}
	return ""
}
