package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgStart = `
		*EcoSort* ♻️

		Send me a photo of a waste item and I will tell you which bin it belongs in.
		Use /help for details.`

	MsgHelp = `
		Send a photo (or an image file) of a single waste item.

		Categories:
		🔴 *HAZARD*: batteries, electronics, chemicals
		🟡 *COMPOST*: food scraps, soiled paper
		🟢 *RECYCLE*: clean plastic, metal, glass, paper
		⚫ *TRASH*: everything else

		/next clears the last result so you can scan another item.
		/status shows the current analysis.`

	MsgUnknownInput   = "Send a photo of a waste item to classify it."
	MsgNextReady      = "Ready. Send a photo of the next item."
	MsgStillAnalyzing = "Still analyzing the previous item…"
	MsgAnalyzing      = "🔍 Analyzing…"
	MsgCaptureFailed  = "Could not read the photo. Please try again."
	MsgNotAnImage     = "That file is not an image. Please send a photo."
)

// =============================================================================
// Result messages
// =============================================================================

const (
	MsgResult = `
		%s *%s*
		%s

		*Item:* %s
		*Confidence:* %d%%

		_%s_

		Send another photo or use /next.`

	MsgAnalysisError = `
		⚠️ %s

		Send /next to try again.`

	MsgStatusIdle      = "Ready to scan. Send a photo."
	MsgStatusAnalyzing = "Analyzing the current item…"
)
