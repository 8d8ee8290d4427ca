package bot

import (
	"fmt"
	"strings"

	"gitlab.com/yelinaung/expense-approval/internal/approval"
	appmodels "gitlab.com/yelinaung/expense-approval/internal/models"
)

const historyTimeLayout = "2006-01-02 15:04"

// escapeHTML escapes special HTML characters for Telegram messages.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func statusLabel(status appmodels.ClaimStatus) string {
	switch status {
	case appmodels.ClaimDraft:
		return "📝 draft"
	case appmodels.ClaimInReview:
		return "⏳ in review"
	case appmodels.ClaimApproved:
		return "✅ approved"
	case appmodels.ClaimRejected:
		return "❌ rejected"
	default:
		return string(status)
	}
}

func stepLabel(status appmodels.StepStatus) string {
	switch status {
	case appmodels.StepActive:
		return "⏳"
	case appmodels.StepApproved:
		return "✅"
	case appmodels.StepRejected:
		return "❌"
	case appmodels.StepSkipped:
		return "⏭"
	default:
		return "•"
	}
}

// formatAmount renders the submitted amount and, when it differs, the
// normalized amount in the company currency.
func formatAmount(claim *appmodels.Claim) string {
	text := fmt.Sprintf("%s %s", claim.Amount.StringFixed(2), claim.Currency)
	if n := claim.Normalized; n != nil && n.Currency != claim.Currency {
		text += fmt.Sprintf(" (≈ %s %s)", n.Amount.StringFixed(2), n.Currency)
	}
	return text
}

// formatClaimSummary renders a claim in a few lines for lists and buttons.
func formatClaimSummary(claim *appmodels.Claim) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🧾 <code>%s</code>\n", escapeHTML(claim.ID))
	fmt.Fprintf(&sb, "💰 %s\n", escapeHTML(formatAmount(claim)))
	fmt.Fprintf(&sb, "📁 %s · %s\n", escapeHTML(claim.Category), claim.ExpenseDate.Format("2006-01-02"))
	if claim.Description != "" {
		fmt.Fprintf(&sb, "📝 %s\n", escapeHTML(claim.Description))
	}
	if step := claim.ActiveStep(); step != nil {
		fmt.Fprintf(&sb, "Step %d: %s (%s)", step.Index+1, escapeHTML(step.Name), escapeHTML(step.Rule.String()))
	} else {
		fmt.Fprintf(&sb, "Status: %s", statusLabel(claim.Status))
	}
	return sb.String()
}

// formatClaimLine renders a claim as one list entry.
func formatClaimLine(claim *appmodels.Claim) string {
	line := fmt.Sprintf("<code>%s</code> · %s · %s · %s", escapeHTML(claim.ID),
		escapeHTML(formatAmount(claim)), escapeHTML(claim.Category), statusLabel(claim.Status))
	if step := claim.ActiveStep(); step != nil {
		line += fmt.Sprintf(" (step %d: %s)", step.Index+1, escapeHTML(step.Name))
	}
	return line
}

// formatClaimDetail renders the claim, its chain and its history.
func formatClaimDetail(claim *appmodels.Claim, history []approval.HistoryEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Claim</b> <code>%s</code> · %s\n", escapeHTML(claim.ID), statusLabel(claim.Status))
	fmt.Fprintf(&sb, "💰 %s\n", escapeHTML(formatAmount(claim)))
	fmt.Fprintf(&sb, "📁 %s · %s\n", escapeHTML(claim.Category), claim.ExpenseDate.Format("2006-01-02"))
	if claim.Description != "" {
		fmt.Fprintf(&sb, "📝 %s\n", escapeHTML(claim.Description))
	}

	if len(claim.Chain) > 0 {
		sb.WriteString("\n<b>Chain</b>\n")
		for _, step := range claim.Chain {
			fmt.Fprintf(&sb, "%s %d. %s (%s)", stepLabel(step.Status), step.Index+1,
				escapeHTML(step.Name), escapeHTML(step.Rule.String()))
			if step.Forced {
				sb.WriteString(" [override]")
			}
			sb.WriteString("\n")
		}
	}

	if len(history) > 0 {
		sb.WriteString("\n<b>History</b>\n")
		for _, h := range history {
			actor := escapeHTML(h.ActorID)
			if h.Override {
				actor += " (override)"
			}
			fmt.Fprintf(&sb, "%s step %d %s by %s", h.At.Format(historyTimeLayout), h.StepIndex+1, h.Decision, actor)
			if h.Comment != "" {
				fmt.Fprintf(&sb, ": <i>%s</i>", escapeHTML(h.Comment))
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatVoteReceipt(decision appmodels.Decision, claim *appmodels.Claim) string {
	verb := "approved"
	if decision == appmodels.DecisionReject {
		verb = "rejected"
	}
	text := fmt.Sprintf("🗳 You %s claim <code>%s</code>.", verb, escapeHTML(claim.ID))
	switch {
	case claim.Status.IsTerminal():
		text += fmt.Sprintf(" The claim is now %s.", statusLabel(claim.Status))
	case claim.ActiveStep() != nil:
		text += fmt.Sprintf(" Waiting on step %d: %s.", claim.ActiveStep().Index+1, escapeHTML(claim.ActiveStep().Name))
	}
	return text
}
