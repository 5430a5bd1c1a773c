package assistant

import (
	"fmt"
	"strings"

	"sqlgate/cli/internal/history"
)

func systemPrompt(maxRows int, schema string, tables []string) string {
	var b strings.Builder
	b.WriteString("You are a helpful SQL database assistant.\n\n")
	b.WriteString("⚠️ CRITICAL RULES (MUST FOLLOW):\n")
	fmt.Fprintf(&b, "1. ALWAYS add LIMIT %d to SELECT queries (unless using COUNT/SUM/AVG)\n", maxRows)
	b.WriteString("2. Prefer aggregations (COUNT, SUM, AVG) over SELECT *\n")
	b.WriteString("3. Always use WHERE clauses to filter data when possible\n")
	b.WriteString("4. Filter on indexed columns such as primary and foreign keys\n")
	b.WriteString("5. Write ONLY the SQL query, no explanations or markdown\n")
	b.WriteString("6. Never modify data unless the question explicitly asks for it\n\n")
	b.WriteString("Database Schema:\n")
	b.WriteString(strings.TrimSpace(schema))
	b.WriteString("\n\nAvailable Tables: ")
	b.WriteString(strings.Join(tables, ", "))
	b.WriteString("\n")
	return b.String()
}

// examples lists the successful question/SQL pairs among the last n records.
func examples(recent []history.Record, n int) string {
	if n <= 0 || len(recent) == 0 {
		return ""
	}
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	var b strings.Builder
	for _, r := range recent {
		if r.Failed() {
			continue
		}
		fmt.Fprintf(&b, "- Q: %s\n  SQL: %s\n", r.Question, r.SQL)
	}
	if b.Len() == 0 {
		return ""
	}
	return "\n📚 Recent successful queries:\n" + b.String()
}

func sqlPrompt(question string, maxRows int, recentExamples string) string {
	return fmt.Sprintf(`Write ONLY the SQL query for this question.

IMPORTANT:
- Add LIMIT %d for SELECT queries (unless using COUNT/SUM/AVG)
- Use WHERE clauses to filter data
- Prefer aggregations over full table scans
- Return ONLY the SQL, no explanations
%s
Question: %s
SQL:`, maxRows, recentExamples, question)
}

func answerPrompt(question, sql, result string) string {
	return fmt.Sprintf(`Question: %s
SQL Query Used: %s
Database Result: %s

Provide a clear, friendly, and accurate answer based on the data.
If the result is empty, explain that no matching records were found.
Format numbers and data in a readable way:`, question, sql, result)
}
