package classifier

import (
	"fmt"
	"strings"

	"github.com/JustJay7/court-case-monitor/internal/database"
)

const captchaPrompt = "Read the characters in this CAPTCHA image. Reply with the characters only, no spaces or punctuation."

const classifySystemPrompt = `You analyse orders issued by Indian district courts.
Return one JSON object with exactly these keys:
  "case_title": string, parties as "A vs B"
  "case_category": string, e.g. civil, criminal, matrimonial, execution
  "order_type": string, e.g. adjournment, interim order, judgment, notice
  "summary": string, three to five sentences in plain English
  "operative_portion": string, the directions of the court quoted or closely paraphrased
  "next_hearing_date": string YYYY-MM-DD or null
  "is_final_order": boolean
  "is_interim_order": boolean
  "is_adjournment": boolean
  "preparation_guidance": string, what counsel should prepare for the next date
  "action_items": array of strings, concrete steps with owners where stated
  "confidence": number between 0 and 1
Use null or empty values when the order does not say. Do not invent dates.`

const rollupSystemPrompt = `You summarise the progress of one Indian district court case from its orders.
Return one JSON object with exactly these keys:
  "narrative": string, the story of the case so far in one or two paragraphs
  "timeline": array of objects {"date": "YYYY-MM-DD", "event": string}, oldest first
  "current_stage": string
  "adjournments": object {"petitioner": integer, "respondent": integer, "court": integer}, who sought each adjournment
  "pending_actions": array of strings
Base every statement on the orders given.`

func perspectiveInstruction(perspective string) string {
	switch perspective {
	case database.PerspectivePetitioner:
		return "\nYou act for the petitioner. Write preparation_guidance and action_items from the petitioner's side."
	case database.PerspectiveRespondent:
		return "\nYou act for the respondent. Write preparation_guidance and action_items from the respondent's side."
	default:
		return ""
	}
}

func classifyPrompt(perspective string) string {
	return classifySystemPrompt + perspectiveInstruction(perspective)
}

func rollupPrompt(perspective string) string {
	return rollupSystemPrompt + perspectiveInstruction(perspective)
}

// Truncate cuts text to at most max runes.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

// rollupContext renders the per-order context in order-number order.
func rollupContext(c *database.Case, pairs []database.OrderWithSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case %s: %s vs %s\n", c.CNR, c.Petitioner, c.Respondent)
	if c.Stage != "" {
		fmt.Fprintf(&b, "Recorded stage: %s\n", c.Stage)
	}
	for _, p := range pairs {
		fmt.Fprintf(&b, "\nOrder %d dated %s\n", p.Order.OrderNumber, p.Order.OrderDate.Format("2006-01-02"))
		if p.Summary.OrderType != "" {
			fmt.Fprintf(&b, "Type: %s\n", p.Summary.OrderType)
		}
		if p.Summary.IsAdjournment {
			b.WriteString("Adjourned: yes\n")
		}
		if p.Summary.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", p.Summary.Summary)
		}
		if p.Summary.OperativePortion != "" {
			fmt.Fprintf(&b, "Directions: %s\n", p.Summary.OperativePortion)
		}
		if p.Summary.NextHearingDate != nil {
			fmt.Fprintf(&b, "Next hearing: %s\n", p.Summary.NextHearingDate.Format("2006-01-02"))
		}
	}
	return b.String()
}
