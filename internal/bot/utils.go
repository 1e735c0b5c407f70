package bot

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/ecosort-bot/internal/scan"
)

func formatReplyText(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

func parseCommand(s string) (string, []string) {
	parts := strings.Split(s, " ")
	// Commands in groups may be addressed as /next@botname
	cmd, _, _ := strings.Cut(parts[0], "@")
	return cmd, parts[1:]
}

// escapeMarkdown escapes special characters for Telegram Markdown V1
func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "*", "\\*")
	text = strings.ReplaceAll(text, "_", "\\_")
	text = strings.ReplaceAll(text, "`", "\\`")
	text = strings.ReplaceAll(text, "[", "\\[")
	return text
}

// formatState renders an analysis state as reply text. Error results carry
// the user-facing message.
func formatState(st scan.State) string {
	switch st.Status {
	case scan.StatusComplete:
		res := st.Result
		return formatReplyText(MsgResult,
			res.Category.Emoji(),
			res.Category,
			res.Category.Bin(),
			escapeMarkdown(res.ItemName),
			res.ConfidencePercent(),
			escapeMarkdown(res.Reasoning),
		)
	case scan.StatusError:
		return formatReplyText(MsgAnalysisError, escapeMarkdown(st.Error))
	case scan.StatusAnalyzing:
		return MsgStatusAnalyzing
	default:
		return MsgStatusIdle
	}
}
