package story

import (
	"fmt"
	"strings"

	"storyreel/internal/model/story"
)

const wordsPerKeyframe = 125

const systemScreenwriter = "You are an expert screenwriter and visual storyteller. Follow the requested output format exactly."

func buildScriptPrompt(keywords []string, keyframeCount int) string {
	return fmt.Sprintf(`You are an expert screenwriter tasked with creating a concise, impactful screenplay.
Theme Keywords: %s.

Requirements:
- Write a very short screenplay (approximately %d words) that can be effectively told in %d key scenes.
- Focus on a single, clear story arc with a beginning, middle, and end.
- Introduce only essential characters and provide vivid descriptions of key settings and actions.
- Include both narration and dialogue that evoke strong visual imagery and emotion.
- Keep the story focused and tight - each scene should have clear visual impact.

Please produce the complete screenplay in a structured format with clear scene headings.`,
		strings.Join(keywords, ", "), keyframeCount*wordsPerKeyframe, keyframeCount)
}

func buildCharactersPrompt(script string) string {
	return fmt.Sprintf(`You are a casting director. List every character who speaks or acts in the screenplay below.

For each character provide:
- role: exactly one of %s
- name
- backstory: one or two sentences
- physical_description: concrete visual details (age, hair, clothing, build) usable by an illustrator
- personality

Return JSON only, in the form {"characters": [{"role": "...", "name": "...", "backstory": "...", "physical_description": "...", "personality": "..."}]}

Script:
%s`, roleList(), script)
}

func buildEnhancePrompt(script string, roster story.Roster, keyframeCount int) string {
	return fmt.Sprintf(`You are a script doctor. Rewrite the screenplay below so that it can be told in exactly %d key scenes,
keeping every character consistent with the cast sheet. Sharpen visual descriptions and keep dialogue attributed to named characters.
Return only the rewritten screenplay.

Cast:
%s

Script:
%s`, keyframeCount, castSheet(roster), script)
}

func buildKeyframesPrompt(script string, count int, roster story.Roster) string {
	return fmt.Sprintf(`You are a visual storyteller and scene director.
Below is a complete screenplay. Your task is to break it down into exactly %d key visual moments or "keyframes" that best capture the story's progression.

For each keyframe, provide:
1. A concise title (e.g., "The Enchanted Forest Entrance")
2. A vivid description that captures the setting, key actions, mood and visual details
3. characters_in_scene: the names of the cast members visible in the keyframe, chosen from: %s

Guidelines:
- First keyframe should establish the setting and introduce key elements
- Middle keyframes should capture the story's main conflict or development
- Final keyframe should provide a satisfying visual conclusion

Return JSON only: {"keyframes": [{"title": "...", "description": "...", "characters_in_scene": ["..."]}]}

Script:
%s`, count, strings.Join(roster.Names(), ", "), script)
}

func buildStylePrompt(script string) string {
	names := make([]string, len(story.Styles))
	for i, s := range story.Styles {
		names[i] = s.String()
	}
	return fmt.Sprintf(`You are a visual art director tasked with determining the most suitable visual style for a screenplay.
Based on the mood, setting, and overall atmosphere of the script, select ONE of the following styles: %s.

Consider the genre and tone, the setting and time period, the level of realism needed and the emotional impact desired.

Return JSON only: {"style": "<STYLE>"}

Script:
%s`, strings.Join(names, ", "), script)
}

func buildSingleScenePrompt(script string, kf story.Keyframe, roster story.Roster) string {
	return fmt.Sprintf(`You are a narrative editor. Given the screenplay and one keyframe, pick the single most important line of
dialogue or narration for that keyframe and the cast member who speaks it (use the narrator for narration).

Cast:
%s

Keyframe: %s
%s

Script:
%s

Return JSON only: {"character": "<cast name>", "text": "..."}`, castSheet(roster), kf.Title, kf.Description, script)
}

func buildDialogScenesPrompt(script string, kf story.Keyframe, roster story.Roster) string {
	return fmt.Sprintf(`You are a narrative editor. Given the screenplay and one keyframe, extract the narration and the dialogue that belong to it.
The first entry must be the narrator's narration describing the scene; the following entries are character lines in speaking order.
Only use speakers from the cast.

Cast:
%s

Keyframe: %s
%s

Script:
%s

Return JSON only: {"lines": [{"character": "<cast name>", "text": "..."}]}`, castSheet(roster), kf.Title, kf.Description, script)
}

func buildOptimizePrompt(scenes []story.Scene, roster story.Roster, style story.VisualStyle) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You write prompts for an image generator using the %s style.
Rewrite each scene description below into a single image prompt. Keep characters visually consistent across all prompts
(same hair, clothing, build and lighting continuity), using the cast descriptions.

Cast:
%s

Scenes:
`, style, castSheet(roster))
	for i, sc := range scenes {
		fmt.Fprintf(&b, "%d: %s. %s\n", i+1, sc.Title, sc.Description)
	}
	fmt.Fprintf(&b, "\nAnswer with exactly %d lines, each starting with its scene number and a colon, e.g. \"1: ...\". No other text.", len(scenes))
	return b.String()
}

func roleList() string {
	names := make([]string, len(story.Roles))
	for i, r := range story.Roles {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}

func castSheet(roster story.Roster) string {
	var b strings.Builder
	for _, c := range roster {
		fmt.Fprintf(&b, "- %s (%s): %s %s\n", c.Name, c.Role, c.PhysicalDescription, c.Personality)
	}
	return strings.TrimRight(b.String(), "\n")
}
