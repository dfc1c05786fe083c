package gateway

import (
	"fmt"
	"strings"

	"capeline/internal/domain"
)

const systemPrompt = `You write content for a superhero life simulation. The player lives a double life as a civilian and a masked hero.
Always answer with JSON only. Never wrap it in prose.`

const taskSchema = `{"tasks":[{"title":string,"description":string,"type":"MISSION"|"WORK"|"EVENT"|"SOCIAL","requiredIdentity":"CIVILIAN"|"SUPER","difficulty":1-10,"rewards":{"money":int,"fame":int,"publicOpinion":int,"stats":{"strength":number}}}]}`

func tasksPrompt(req TaskRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d new tasks as %s.\n", req.Count, taskSchema)
	if req.Context != "" {
		fmt.Fprintf(&b, "Theme: %s\n", req.Context)
	}
	if len(req.ExistingTitles) > 0 {
		fmt.Fprintf(&b, "Do not repeat any of these titles: %s\n", strings.Join(req.ExistingTitles, "; "))
	}
	if len(req.Suggestions) > 0 {
		b.WriteString("The player asked for tasks like:\n")
		for _, s := range req.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s.Prompt)
		}
	}
	return b.String()
}

func itemsPrompt(count int, context string) string {
	return fmt.Sprintf(`Generate %d items as {"items":[{"name":string,"description":string,"slot":"HEAD"|"BODY"|"GADGET"|"ACCESSORY","statBonuses":{"agility":number},"tags":[string],"price":int}]}.
Theme: %s`, count, context)
}

func upgradesPrompt(count int, context string) string {
	return fmt.Sprintf(`Generate %d hideout upgrades as {"upgrades":[{"name":string,"description":string,"cost":int,"trainingModifiers":{"strength":int},"workMoneyBonus":int}]}.
Theme: %s`, count, context)
}

func eventsPrompt(count int, context string) string {
	return fmt.Sprintf(`Generate %d calendar events as {"events":[{"title":string,"description":string,"type":"MISSION"|"WORK"|"EVENT"|"SOCIAL"}]}.
Theme: %s`, count, context)
}

func newsPrompt(day int, context string) string {
	return fmt.Sprintf(`Write the city newspaper for day %d as {"headline":string,"articles":[{"title":string,"body":string}],"impacts":{"fame":int,"publicOpinion":int},"codexEntries":[{"title":string,"category":"LORE"|"NPC"|"FACTION"|"LOCATION","content":string}],"worldModifier":string}.
Theme: %s`, day, context)
}

func linkedTasksPrompt(issue domain.NewsIssue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate 1 to 3 tasks that follow from this newspaper as %s.\n", taskSchema)
	fmt.Fprintf(&b, "Headline: %s\n", issue.Headline)
	for _, a := range issue.Articles {
		fmt.Fprintf(&b, "- %s: %s\n", a.Title, a.Body)
	}
	return b.String()
}

func weeklySummaryPrompt(week int, recent []domain.TimelineEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize week %d of the player's life as {\"title\":string,\"content\":string}.\n", week)
	for _, e := range recent {
		fmt.Fprintf(&b, "day %d [%s] %s\n", e.Day, e.Kind, e.Text)
	}
	return b.String()
}

func narratePrompt(task domain.Task, player domain.Player, transcript []domain.TranscriptTurn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are narrating the scene %q (difficulty %d) for %s.\n", task.Title, task.Difficulty, player.DisplayName())
	if task.Scenario != nil && task.Scenario.Opening != "" {
		fmt.Fprintf(&b, "Opening: %s\n", task.Scenario.Opening)
	}
	fmt.Fprintf(&b, "Stats: strength %.0f, agility %.0f, intellect %.0f, charisma %.0f.\n",
		player.Stats.Strength, player.Stats.Agility, player.Stats.Intellect, player.Stats.Charisma)
	writeTranscript(&b, transcript)
	b.WriteString(`Continue the scene in two or three sentences as {"text":string}.`)
	return b.String()
}

func summarizePrompt(task domain.Task, transcript []domain.TranscriptTurn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Judge how the player did in %q (difficulty %d).\n", task.Title, task.Difficulty)
	writeTranscript(&b, transcript)
	b.WriteString(`Answer as {"level":"CRITICAL_FAILURE"|"FAILURE"|"PARTIAL_FAILURE"|"PARTIAL_SUCCESS"|"SUCCESS"|"COMPLETE_SUCCESS","rewards":{"money":int,"fame":int},"reputation":{"name":int},"summary":string}.`)
	return b.String()
}

func writeTranscript(b *strings.Builder, transcript []domain.TranscriptTurn) {
	for _, t := range transcript {
		fmt.Fprintf(b, "%s: %s\n", t.Role, t.Text)
	}
}
