// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"fmt"
	"strings"

	"github.com/sleapenv/sleapenv/internal/pipeline"
	"github.com/sleapenv/sleapenv/internal/plan"
	"github.com/sleapenv/sleapenv/internal/toolkit"

	"mvdan.cc/sh/v3/syntax"
)

const (
	// ImageBinaryPath is where the sleapenv binary lives inside the image.
	ImageBinaryPath = "/opt/sleapenv/bin/sleapenv"
	// ImagePlanPath is where the plan lives inside the image.
	ImagePlanPath = "/opt/sleapenv/" + plan.FileName

	// LabelCacheKey holds the content hash of the build inputs.
	LabelCacheKey = "io.sleapenv.cache-key"
	// LabelPlanID holds the id of the plan the image was built from.
	LabelPlanID = "io.sleapenv.plan-id"
	// LabelVariant holds the build variant.
	LabelVariant = "io.sleapenv.variant"

	binaryFile = "sleapenv"
	toolkitDir = "toolkit"
	dockerfile = "Dockerfile"
)

// generateDockerfile renders the Dockerfile for p. Each step is a separate
// RUN so the build stops at the first failing step.
func generateDockerfile(p *plan.Plan) (string, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "FROM %s\n\n", p.Base.Pinned())
	fmt.Fprintf(&sb, "COPY %s %s\n", binaryFile, ImageBinaryPath)
	fmt.Fprintf(&sb, "COPY %s %s\n", plan.FileName, ImagePlanPath)
	fmt.Fprintf(&sb, "ENV PATH=\"%s:$PATH\"\n\n", strings.TrimSuffix(ImageBinaryPath, "/"+binaryFile))

	for _, name := range pipeline.Order {
		if name == pipeline.StepToolkit && p.Toolkit.Source.Kind == toolkit.KindLocal {
			fmt.Fprintf(&sb, "COPY %s/ %s/\n", toolkitDir, p.Toolkit.Settings.InstallPath)
		}
		run, err := applyCommand(name)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "RUN %s\n", run)
	}

	fmt.Fprintf(&sb, "\nWORKDIR %s\n", p.Workspace)
	return sb.String(), nil
}

func applyCommand(step pipeline.StepName) (string, error) {
	args := []string{ImageBinaryPath, "apply", "--plan", ImagePlanPath, "--step", step.String()}
	quoted := make([]string, len(args))
	for i, a := range args {
		q, err := syntax.Quote(a, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quote %q: %w", a, err)
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " "), nil
}
