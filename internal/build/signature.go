package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"tern/internal/config"
	"tern/internal/site"
	"tern/internal/source"
	"tern/internal/version"
)

// computeSignature derives a stable hash over everything that can
// influence build output: every source entry's path and content
// fingerprint, the render-relevant configuration, the hook script, the
// template set, the tern version and the source revision. Two builds
// with equal signatures produce byte-identical output, which lets a
// repeat build skip scheduling entirely.
//
// Unreadable entries contribute an error marker instead of a
// fingerprint so a transient read failure never masquerades as the
// previous successful build.
func computeSignature(entries []source.Entry, m *site.Model, cfg *config.Config, revision string, dirty bool) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Failed() {
			lines = append(lines, e.Path+":!err")
			continue
		}
		lines = append(lines, fmt.Sprintf("%s:%016x", e.Path, e.Fingerprint))
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	fmt.Fprintf(h, "config:%016x\n", cfg.FP())
	fmt.Fprintf(h, "script:%016x\n", m.ScriptFP)
	fmt.Fprintf(h, "templates:%016x\n", m.Engine.Version())
	fmt.Fprintf(h, "data:%016x\n", m.DataFP)
	fmt.Fprintf(h, "tern:%s\n", version.Version)
	fmt.Fprintf(h, "revision:%s dirty:%t\n", revision, dirty)
	return hex.EncodeToString(h.Sum(nil))
}
