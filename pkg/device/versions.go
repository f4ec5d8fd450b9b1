package device

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// VersionFailure records one component whose observed version did not
// satisfy the expectation.
type VersionFailure struct {
	Component string
	Expected  string
	Observed  string
}

// CheckVersions reads each expected component's version from the
// firmware inventory and compares it under operator (==, !=, <, <=, >,
// >=). A nil expected version excludes the component from the check
// entirely; it is never fetched. All checked components are read before
// the verdict so one log line lists every mismatch, not just the first.
func (c *Controller) CheckVersions(ctx context.Context, expected map[string]*string, operator string, target Target) (ok bool, err error) {
	start := c.startOp("check_versions")
	defer func() { c.finishOp("check_versions", start, ok) }()

	call, err := c.caller("check_versions", target)
	if err != nil {
		return false, err
	}
	if !validOperator(operator) {
		return false, configErr(c.name, "check_versions", "unknown version operator %q", operator)
	}

	components := make([]string, 0, len(expected))
	for name := range expected {
		components = append(components, name)
	}
	sort.Strings(components)

	var failures []VersionFailure
	checked := 0
	for _, component := range components {
		want := expected[component]
		if want == nil {
			log.Debug().
				Str("device", c.name).
				Str("component", component).
				Msg("no expected version, skipping component")
			continue
		}
		checked++

		callOK, payload := call.Call(ctx, http.MethodGet, inventoryPath+"/"+component, nil)
		observed := ""
		if callOK {
			observed = payload.String("Version")
		}

		switch {
		case observed == "":
			failures = append(failures, VersionFailure{Component: component, Expected: *want})
		case !compareVersions(observed, *want, operator):
			failures = append(failures, VersionFailure{Component: component, Expected: *want, Observed: observed})
		}
	}

	if len(failures) > 0 {
		evt := log.Error().Str("device", c.name).Str("operator", operator)
		for _, f := range failures {
			evt = evt.Str(f.Component, "observed "+strconv.Quote(f.Observed)+" expected "+strconv.Quote(f.Expected))
		}
		evt.Int("failed", len(failures)).Msg("version verification failed")
		return false, nil
	}

	log.Info().
		Str("device", c.name).
		Int("components", checked).
		Msg("version verification passed")
	return true, nil
}

func validOperator(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

// compareVersions applies operator between observed and expected.
// Ordering operators compare dotted numeric segments and fall back to
// string order for non-numeric versions.
func compareVersions(observed, expected, operator string) bool {
	switch operator {
	case "==":
		return observed == expected
	case "!=":
		return observed != expected
	}

	cmp := compareDotted(observed, expected)
	switch operator {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// compareDotted orders two dotted version strings segment by segment.
func compareDotted(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		var sa, sb string
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}

		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		if errA == nil && errB == nil {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if sa != sb {
			return strings.Compare(sa, sb)
		}
	}
	return 0
}
