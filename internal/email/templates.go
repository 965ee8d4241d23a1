package email

import (
	"fmt"
	"html"
	"time"
)

// Templates stay deliberately small: a heading, one or two lines, one link.
// The frontend owns anything richer.

func link(appURL, path, label string) string {
	return fmt.Sprintf(`<p><a href="%s%s">%s</a></p>`, appURL, path, label)
}

func wrap(body string) string {
	return `<div style="font-family:sans-serif;max-width:560px;margin:0 auto">` + body + `</div>`
}

func renderWelcome(name, appURL string) string {
	return wrap(fmt.Sprintf(
		`<h2>Welcome, %s!</h2>
<p>Your profile is live. Tell us what you can teach and what you want to learn, and we'll find your reciprocal matches.</p>`,
		html.EscapeString(name)) + link(appURL, "/matches", "Find matches"))
}

func renderSwapRequest(recipientName, requesterName, need, appURL string) string {
	return wrap(fmt.Sprintf(
		`<h2>Hi %s,</h2>
<p><strong>%s</strong> sent you a swap request. They're looking for: %s</p>`,
		html.EscapeString(recipientName), html.EscapeString(requesterName), html.EscapeString(need)) +
		link(appURL, "/requests", "Respond to the request"))
}

func renderSwapAccepted(requesterName, recipientName, appURL string) string {
	return wrap(fmt.Sprintf(
		`<h2>Good news, %s!</h2>
<p><strong>%s</strong> accepted your swap request. You can now coordinate the details.</p>`,
		html.EscapeString(requesterName), html.EscapeString(recipientName)) +
		link(appURL, "/messages", "Open the conversation"))
}

func renderSwapDeclined(requesterName, recipientName, appURL string) string {
	return wrap(fmt.Sprintf(
		`<h2>Hi %s,</h2>
<p><strong>%s</strong> declined your swap request. Any reserved points have been refunded.</p>`,
		html.EscapeString(requesterName), html.EscapeString(recipientName)) +
		link(appURL, "/matches", "Find another match"))
}

func renderCompletionPending(name, otherName string, deadline time.Time, appURL string) string {
	return wrap(fmt.Sprintf(
		`<h2>Hi %s,</h2>
<p><strong>%s</strong> marked your swap as complete. Confirm or dispute before <strong>%s</strong>; after that the swap finalizes automatically.</p>`,
		html.EscapeString(name), html.EscapeString(otherName),
		deadline.UTC().Format("Jan 2, 2006 15:04 MST")) +
		link(appURL, "/swaps", "Review the swap"))
}

func renderSwapCompleted(name string, points, credits int, appURL string) string {
	return wrap(fmt.Sprintf(
		`<h2>Swap completed, %s!</h2>
<p>You earned <strong>%d points</strong> and <strong>%d credits</strong>. Leave a review to help your partner's reputation.</p>`,
		html.EscapeString(name), points, credits) +
		link(appURL, "/reviews", "Leave a review"))
}

func renderDisputeOpened(name, reason, appURL string) string {
	return wrap(fmt.Sprintf(
		`<h2>Hi %s,</h2>
<p>Your swap completion was disputed: %s</p>
<p>The swap is on hold while the dispute is reviewed.</p>`,
		html.EscapeString(name), html.EscapeString(reason)))
}

func renderNewMessage(senderName, preview, appURL string) string {
	return wrap(fmt.Sprintf(
		`<h2>New message from %s</h2>
<blockquote>%s</blockquote>`,
		html.EscapeString(senderName), html.EscapeString(preview)) +
		link(appURL, "/messages", "Reply"))
}

func renderMatchFound(name, matchName string, score float64, appURL string) string {
	return wrap(fmt.Sprintf(
		`<h2>Hi %s,</h2>
<p><strong>%s</strong> looks like a strong reciprocal match (%.0f%% fit): they want what you teach, and they teach what you want.</p>`,
		html.EscapeString(name), html.EscapeString(matchName), score*100) +
		link(appURL, "/matches", "See the match"))
}
