package frameagent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/frameagent/frameagent/snapshot"
)

// writeDebugArtifacts persists one capture cycle's artifacts under dir (spec
// §6 "Persisted state / debug layout"). Failures are logged, not returned:
// debug output is diagnostic, never load-bearing for the caller's result.
func writeDebugArtifacts(dir string, snap *snapshot.Snapshot, log *logrus.Entry) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Warn("frameagent: could not create debug dir")
		return
	}

	writeFile(dir, "elems.txt", []byte(snap.DOMState), log)

	if snap.VisualOverlay != nil {
		writeFile(dir, "screenshot.png", snap.VisualOverlay, log)
	}

	writeJSON(dir, "frames.json", snap.FrameMap, log)

	writeJSON(dir, "perf.json", map[string]any{
		"ageMs":        snap.Age().Milliseconds(),
		"elementCount": len(snap.Elements),
		"frameCount":   len(snap.FrameMap),
	}, log)

	writeJSON(dir, "dom-capture-metrics.json", map[string]any{
		"elementCount": len(snap.Elements),
		"warnings":     snap.Warnings,
	}, log)
}

// WriteStepOutput persists one agent step's model output and action result
// under dir as stepOutput.json for retrospective inspection (spec §6
// "Persisted state / debug layout"). Like the capture artifacts, failures
// are logged and never propagated.
func (e *Engine) WriteStepOutput(dir string, step int, agentOutput, actionOutput any) {
	stepDir := filepath.Join(dir, fmt.Sprintf("step-%d", step))
	if err := os.MkdirAll(stepDir, 0o755); err != nil {
		e.log.WithError(err).Warn("frameagent: could not create step debug dir")
		return
	}
	writeJSON(stepDir, "stepOutput.json", map[string]any{
		"agentOutput":  agentOutput,
		"actionOutput": actionOutput,
	}, e.log)
}

func writeFile(dir, name string, data []byte, log *logrus.Entry) {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		log.WithError(err).Warnf("frameagent: could not write debug artifact %s", name)
	}
}

func writeJSON(dir, name string, v any, log *logrus.Entry) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.WithError(err).Warnf("frameagent: could not marshal debug artifact %s", name)
		return
	}
	writeFile(dir, name, data, log)
}
