package sysmsg

import (
	"regexp"
	"strconv"
)

type legacyPattern struct {
	re   *regexp.Regexp
	kind Type
}

// Historical phrasings across the app's languages. Groups: 1 nickname,
// 2 number (when present). The set is known to be incomplete.
var legacyPatterns = []legacyPattern{
	// en
	{regexp.MustCompile(`^(.+?) (?:reached|has reached|is on) an? (\d+)[- ]day streak`), TypeStreakAnnouncement},
	{regexp.MustCompile(`^(.+?) reached level (\d+)`), TypeLevelUp},
	{regexp.MustCompile(`^(.+?) (?:joined|has joined) the group`), TypeUserJoined},
	{regexp.MustCompile(`^(.+?) (?:left|has left) the group`), TypeUserLeft},
	// ja
	{regexp.MustCompile(`^(.+?)さんが(\d+)日連続`), TypeStreakAnnouncement},
	{regexp.MustCompile(`^(.+?)さんがレベル(\d+)`), TypeLevelUp},
	{regexp.MustCompile(`^(.+?)さんがグループに参加しました`), TypeUserJoined},
	{regexp.MustCompile(`^(.+?)さんがグループを退出しました`), TypeUserLeft},
	// es
	{regexp.MustCompile(`^¡?(.+?) (?:alcanzó|ha alcanzado) una racha de (\d+) días`), TypeStreakAnnouncement},
	{regexp.MustCompile(`^(.+?) se unió al grupo`), TypeUserJoined},
	{regexp.MustCompile(`^(.+?) salió del grupo`), TypeUserLeft},
	// pt
	{regexp.MustCompile(`^(.+?) (?:alcançou|atingiu) uma sequência de (\d+) dias`), TypeStreakAnnouncement},
	{regexp.MustCompile(`^(.+?) entrou no grupo`), TypeUserJoined},
	{regexp.MustCompile(`^(.+?) saiu do grupo`), TypeUserLeft},
}

// AdaptLegacy interprets baked system text. Unmatched text stays a
// TypeLegacy message that clients display as-is.
func AdaptLegacy(text string) Message {
	for _, p := range legacyPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		out := Message{Type: p.kind, Nickname: m[1], RawText: text}
		if len(m) > 2 {
			n, _ := strconv.Atoi(m[2])
			switch p.kind {
			case TypeStreakAnnouncement:
				out.Streak = n
			case TypeLevelUp:
				out.Level = n
			}
		}
		return out
	}
	return Message{Type: TypeLegacy, RawText: text}
}
