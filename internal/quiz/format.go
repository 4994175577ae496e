package quiz

import (
	"fmt"
	"strings"

	"github.com/example/germanbot/internal/session"
	"github.com/example/germanbot/pkg/models"
)

// Outbound text lives here so every transport sends identical messages.

func formatPrompt(item models.VocabularyItem, position, total int) string {
	return fmt.Sprintf("🇩🇪 (%d/%d) What is the translation of *%s*?", position, total, item.Key)
}

func formatFeedback(v session.Verdict) string {
	if v.Correct {
		return "✅ Correct!"
	}
	return fmt.Sprintf("❌ Not quite. *%s* means *%s*.", v.Item.Key, v.Expected)
}

func formatSummary(sum session.Summary) string {
	var b strings.Builder
	if sum.Partial {
		b.WriteString("🏁 Round stopped early.\n")
	} else {
		b.WriteString("🏁 Round complete!\n")
	}
	fmt.Fprintf(&b, "Correct: %d, wrong: %d.\n", sum.CorrectCount, sum.WrongCount)
	if len(sum.Missed) > 0 {
		b.WriteString("\nWorth another look:\n")
		for _, item := range sum.Missed {
			fmt.Fprintf(&b, "• %s — %s\n", item.Key, item.Translation)
		}
	}
	if sum.Degraded {
		b.WriteString("\n⚠️ Some results could not be saved yet. They will be synced automatically.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTimeoutSummary(sum session.Summary) string {
	return "⌛ The round timed out.\n" + formatSummary(sum)
}

func formatCard(item models.VocabularyItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🇩🇪 *%s*\n", item.Key)
	fmt.Fprintf(&b, "Translation: %s\n", item.Translation)
	if item.English != "" {
		fmt.Fprintf(&b, "🇬🇧 English: %s\n", item.English)
	}
	if item.Example != "" {
		fmt.Fprintf(&b, "📖 Example: %s\n", item.Example)
	}
	if item.Mnemonic != "" {
		fmt.Fprintf(&b, "🧠 Mnemonic: %s\n", item.Mnemonic)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStats(total, started, due, mastered, attempts, correct int) string {
	var b strings.Builder
	b.WriteString("📊 Your progress\n")
	fmt.Fprintf(&b, "Words in the deck: %d\n", total)
	fmt.Fprintf(&b, "Words you started: %d\n", started)
	fmt.Fprintf(&b, "Mastered: %d\n", mastered)
	fmt.Fprintf(&b, "Due for review now: %d\n", due)
	if attempts > 0 {
		fmt.Fprintf(&b, "Answer accuracy: %.0f%% (%d of %d)", float64(correct)/float64(attempts)*100, correct, attempts)
	}
	return strings.TrimRight(b.String(), "\n")
}
