// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	"sqlgate/cli/internal/errors"

	"github.com/pterm/pterm"
)

type guidance struct {
	title   string
	intro   string
	bullets []string
	next    string
}

var failureGuidance = map[errors.Kind]guidance{
	errors.EmptyInput: {
		title: "No Query Produced",
		intro: "The model answered without a SQL statement.",
		bullets: []string{
			"The question may not map to the tables in this database",
			"The model may have asked a clarifying question instead",
		},
		next: "Rephrase the question or type 'tables' to see what is available",
	},
	errors.PolicyRejected: {
		title: "Query Blocked",
		intro: "The generated statement did not pass the safety checks.",
		bullets: []string{
			"Schema changes and deletes are never executed",
			"Row-returning queries must stay under the configured LIMIT",
		},
		next: "Ask for a narrower result, or use an aggregate such as COUNT",
	},
	errors.Timeout: {
		title: "Query Timed Out",
		intro: "The statement did not finish before the deadline.",
		bullets: []string{
			"The query may scan a large table without an index",
			"The database may be under heavy load",
		},
		next: "Add more filters or use aggregation",
	},
	errors.SQLError: {
		title: "Database Error",
		intro: "The database rejected the statement.",
		bullets: []string{
			"A column or table name may be misspelled",
			"Types in a comparison may not match",
		},
		next: "Type 'schema' to check names, then ask again",
	},
	errors.ModelFailed: {
		title: "Model Request Failed",
		intro: "The language model could not be reached or returned an error.",
		bullets: []string{
			"Your API key may be missing or revoked",
			"The provider may be rate limiting or unavailable",
		},
		next: "Run 'sqlgate login' to store a key, or try again shortly",
	},
	errors.ConfigInvalid: {
		title: "Configuration Problem",
		intro: "A setting is missing or out of range.",
		bullets: []string{
			"Check config.yaml and SQLGATE_* environment variables",
		},
		next: "Run 'sqlgate connect' to set a database",
	},
	errors.SecretStore: {
		title: "Keychain Unavailable",
		intro: "The operating system keychain could not be used.",
		bullets: []string{
			"No keyring backend may be installed on this system",
		},
		next: "Set OPENROUTER_API_KEY and SQLGATE_DSN in the environment instead",
	},
}

// FormatFailure renders a failure of the given kind in a user-friendly way.
// detail is masked and shown as technical details.
func FormatFailure(kind errors.Kind, detail string) string {
	g, ok := failureGuidance[kind]
	if !ok {
		g = guidance{
			title: "Something Went Wrong",
			intro: "The request could not be completed.",
			next:  "Run again with --verbose and check the log file",
		}
	}

	var builder strings.Builder
	builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(g.title))
	builder.WriteString("\n\n")
	builder.WriteString(g.intro)
	builder.WriteString("\n")
	for _, b := range g.bullets {
		builder.WriteString("  • " + b + "\n")
	}
	builder.WriteString("\n")
	builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ " + g.next))
	builder.WriteString("\n")

	if strings.TrimSpace(detail) != "" {
		builder.WriteString("\n")
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(detail)))
	}
	return builder.String()
}

// PresentFailure prints err using the guidance for its kind.
func PresentFailure(err error) {
	if err == nil {
		return
	}
	fmt.Println()
	fmt.Println(FormatFailure(errors.KindOf(err), err.Error()))
	fmt.Println()
}
