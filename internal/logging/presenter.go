// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"strings"

	"sqlgate/cli/internal/errors"
)

// PresentError renders err as a short masked message for inline use, such as
// a REPL command that failed without ending the session. When err carries a
// known kind the suggested next step is added on its own line. Full guidance
// is FormatFailure's job.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(context)
	b.WriteString(": ")
	b.WriteString(Mask(err.Error()))
	if g, ok := failureGuidance[errors.KindOf(err)]; ok {
		b.WriteString("\n   → ")
		b.WriteString(g.next)
	}
	return b.String()
}
