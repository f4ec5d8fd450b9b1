package device

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// artifactTiers are the CPLD artifact patterns in preference order. The
// first tier with any match wins; refresh images take priority because
// they carry the erase sequence the plain images assume already ran.
var artifactTiers = []string{
	"cpld*refresh*.vme",
	"cpld*.vme",
	"*.vme",
	"*.jed",
}

// InstallCPLD unpacks a CPLD package, selects the best programming
// artifact, stages it on the host OS, and drives the vendor install
// tool. The scratch directory is removed exactly once on every path out
// of the pipeline, success or not.
func (c *Controller) InstallCPLD(ctx context.Context, packagePath string) (ok bool, err error) {
	start := c.startOp("install_cpld")
	defer func() { c.finishOp("install_cpld", start, ok) }()

	if c.runner == nil {
		return false, configErr(c.name, "install_cpld", "device has no host OS endpoint")
	}
	if c.dev.StagingDir == "" {
		return false, configErr(c.name, "install_cpld", "device has no staging directory")
	}

	if _, err := os.Stat(packagePath); err != nil {
		log.Error().Err(err).Str("device", c.name).Str("package", packagePath).Msg("cpld package missing")
		return false, nil
	}

	scratch, err := os.MkdirTemp("", "cpld-*")
	if err != nil {
		log.Error().Err(err).Str("device", c.name).Msg("failed to create scratch directory")
		return false, nil
	}
	defer func() {
		if err := c.removeScratch(scratch); err != nil {
			log.Warn().Err(err).Str("device", c.name).Str("scratch", scratch).Msg("failed to remove scratch directory")
		}
	}()

	if !c.unpack.Unpack(packagePath, scratch) {
		return false, nil
	}

	artifact := selectArtifact(scratch)
	if artifact == "" {
		log.Error().
			Str("device", c.name).
			Str("package", packagePath).
			Msg("package contains no cpld programming artifact")
		return false, nil
	}
	log.Info().
		Str("device", c.name).
		Str("artifact", filepath.Base(artifact)).
		Msg("cpld artifact selected")

	if !c.runner.TransferFiles(ctx, []string{artifact}, c.dev.StagingDir, nil, false) {
		return false, nil
	}

	return c.installStaged(ctx, filepath.Base(artifact)), nil
}

// installStaged drives the vendor update tool against a file already
// staged under the device staging directory.
func (c *Controller) installStaged(ctx context.Context, name string) bool {
	staged := path.Join(c.dev.StagingDir, name)
	return c.runner.Exec(ctx, "fwupdate --install "+staged, true, 0, nil)
}

// selectArtifact walks an unpacked package and returns the best
// programming artifact per the tier order, or "" when none matches.
// Within a tier, ties break on sorted base name so the choice is stable
// across runs.
func selectArtifact(root string) string {
	var files []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		files = append(files, p)
		return nil
	})

	for _, tier := range artifactTiers {
		var matches []string
		for _, file := range files {
			matched, _ := path.Match(tier, strings.ToLower(filepath.Base(file)))
			if matched {
				matches = append(matches, file)
			}
		}
		if len(matches) == 0 {
			continue
		}
		sort.Slice(matches, func(i, j int) bool {
			return filepath.Base(matches[i]) < filepath.Base(matches[j])
		})
		if len(matches) > 1 {
			log.Debug().
				Str("tier", tier).
				Int("candidates", len(matches)).
				Str("chosen", filepath.Base(matches[0])).
				Msg("multiple cpld artifacts in tier")
		}
		return matches[0]
	}
	return ""
}

// removeScratchDir is the production scratch cleanup.
func removeScratchDir(dir string) error {
	return os.RemoveAll(dir)
}
