package leaderboard

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const nameWidth = 18

// FormatEUR renders cents as euros, without decimals for whole amounts.
func FormatEUR(cents int64) string {
	p := message.NewPrinter(language.English)
	if cents%100 == 0 {
		return p.Sprintf("€%v", number.Decimal(cents/100))
	}
	return p.Sprintf("€%v", number.Decimal(float64(cents)/100, number.Scale(2)))
}

// RenderLive is the content of the pinned leaderboard message.
func RenderLive(b Boards) string {
	return render("🏆 LEADERBOARD · "+b.Month, b)
}

// RenderFinal is the one-time results announcement of a closed month.
func RenderFinal(b Boards) string {
	return render("🏁 FINAL RESULTS · "+b.Month, b)
}

func render(title string, b Boards) string {
	var sb strings.Builder
	sb.WriteString("**" + title + "**\n\n")

	sb.WriteString("🔥 **Top Inviters**\n")
	if len(b.Invites) == 0 {
		sb.WriteString("No invites yet this month.\n")
	} else {
		rows := make([][2]string, 0, len(b.Invites))
		for _, e := range b.Invites {
			rows = append(rows, [2]string{e.Name, fmt.Sprint(e.Count)})
		}
		sb.WriteString(table("User", "Invites", rows))
	}

	sb.WriteString("\n💰 **Top Affiliates**\n")
	if len(b.Affiliates) == 0 {
		sb.WriteString("No qualified referrals yet.\n")
	} else {
		rows := make([][2]string, 0, len(b.Affiliates))
		for _, e := range b.Affiliates {
			rows = append(rows, [2]string{e.Name, FormatEUR(e.RewardCents)})
		}
		sb.WriteString(table("User", "Total Earnings", rows))
	}
	return sb.String()
}

// RenderStats is the private /mystats reply.
func RenderStats(s MemberStats) string {
	var sb strings.Builder
	sb.WriteString("📈 **Your Affiliate Stats**\n")
	section := func(title string, t Tally) {
		fmt.Fprintf(&sb, "\n**%s**\nInvites: **%d**\nQualified: **%d**\nEarned: **%s**\n",
			title, t.Invites, t.Qualified, FormatEUR(t.EarnedCents))
	}
	section("This Month · "+s.ThisMonth, s.Current)
	section("Last Month · "+s.LastMonth, s.Previous)
	section("All-time", s.AllTime)
	return sb.String()
}

// RenderInfo explains the program in the info channel.
func RenderInfo(topN int, feeCents int64, affiliateChannelID, launchAt, carryoverMonth string) string {
	lines := []string{
		"ℹ️ **Leaderboards & Affiliate Rewards: How It Works**",
		"",
		"Two leaderboards are tracked each month:",
		"",
		"🔥 **Top Inviters**",
		"• Ranked by total invites into the server via your personal invite link",
		fmt.Sprintf("• Top %d are displayed on the leaderboard", topN),
		"",
		"💰 **Top Affiliates**",
		"• Ranked by **qualified referrals** (invited members who complete their **first deal**)",
		fmt.Sprintf("• Earnings = **%s** per qualified referral", FormatEUR(feeCents)),
		fmt.Sprintf("• Top %d are displayed on the leaderboard", topN),
		"",
	}
	if affiliateChannelID != "" {
		lines = append(lines,
			"**How do I get my invite link?**",
			fmt.Sprintf("• Use **/invite** or go to <#%s>", affiliateChannelID),
			"",
		)
	}
	lines = append(lines,
		"**When do I get paid?**",
		"• Earnings are calculated monthly",
		"• You receive a DM summary after month end",
		"",
		"**How do I see my stats?**",
		"• Use the **/mystats** command in any channel",
		"",
	)
	if launchAt != "" && carryoverMonth != "" {
		lines = append(lines,
			"**Launch carryover**",
			fmt.Sprintf("• Invites after **%s** count towards **%s**", launchAt, carryoverMonth),
			"",
		)
	}
	lines = append(lines, "Abuse, spam or fake accounts may result in removal from the program.")
	return strings.Join(lines, "\n")
}

func table(h1, h2 string, rows [][2]string) string {
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, pad(h1, nameWidth)+h2)
	lines = append(lines, strings.Repeat("─", nameWidth+utf8.RuneCountInString(h2)))
	for _, r := range rows {
		lines = append(lines, pad(clamp(r[0], nameWidth), nameWidth)+r[1])
	}
	return "```\n" + strings.Join(lines, "\n") + "\n```\n"
}

func clamp(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
