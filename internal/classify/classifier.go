// Package classify turns an inbound reply into a verdict against the
// reminders the sender still owes an answer to. It is a keyword rule
// engine: stateless, safe for concurrent use and never failing.
package classify

import (
	"sort"
	"strings"
	"unicode"

	"remindr/internal/domain"
	"remindr/internal/observability"
)

// Fixed confidence per rule.
const (
	ConfidenceOptOut       = 1.0
	ConfidenceConfirmed    = 0.95
	ConfidenceHelp         = 0.9
	ConfidenceComplete     = 0.9
	ConfidenceAttachment   = 0.8
	ConfidenceNegative     = 0.7
	ConfidenceIncomplete   = 0.6
	ConfidenceUncorrelated = 0.5
	ConfidenceUnclear      = 0.3
	ConfidenceEmpty        = 0.0
)

type Classifier struct {
	optOut   map[string]struct{}
	help     []phrase
	positive []phrase
	confirm  []phrase
	negative []phrase
}

func New(v Vocabulary) *Classifier {
	c := &Classifier{
		optOut:   map[string]struct{}{},
		help:     compile(v.Help),
		positive: compile(v.Positive),
		confirm:  compile(v.Confirm),
		negative: compile(v.Negative),
	}
	for _, p := range v.OptOut {
		c.optOut[normalize(p)] = struct{}{}
	}
	return c
}

// Classify evaluates msg against the sender's pending contexts.
func (c *Classifier) Classify(msg domain.InboundMessage, pending []domain.PendingContext) domain.ClassifiedResponse {
	res := c.classify(msg, pending)
	observability.Classifications.WithLabelValues(string(res.Polarity), string(res.Action)).Inc()
	return res
}

func (c *Classifier) classify(msg domain.InboundMessage, pending []domain.PendingContext) domain.ClassifiedResponse {
	text := normalize(msg.Body)
	hasText := text != ""
	hasAttachment := msg.HasAttachment()
	words := tokenize(text)

	if _, ok := c.optOut[strings.Trim(text, ".!")]; ok && hasText {
		return domain.ClassifiedResponse{Polarity: domain.PolarityOptOut, Action: domain.ActionIgnore, Confidence: ConfidenceOptOut}
	}

	if !hasText && !hasAttachment {
		return domain.ClassifiedResponse{Polarity: domain.PolarityUnclear, Action: domain.ActionFlagForReview, Confidence: ConfidenceEmpty}
	}

	if matchAny(c.help, text, words) {
		return domain.ClassifiedResponse{
			ReminderID: id(correlate(pending, hasText, hasAttachment, false)),
			Polarity:   domain.PolarityHelp,
			Action:     domain.ActionFlagForReview,
			Confidence: ConfidenceHelp,
		}
	}

	// A positive phrase inside a negation ("not done") does not count.
	negated := spans(c.negative, words)

	if matchOutside(c.confirm, text, words, negated) {
		if ctx := correlate(pending, hasText, hasAttachment, true); ctx != nil && ctx.ExpectsConfirmation {
			return domain.ClassifiedResponse{ReminderID: ctx.ReminderID, Polarity: domain.PolarityPositive, Action: domain.ActionMarkConfirmed, Confidence: ConfidenceConfirmed}
		}
	}

	positive := matchOutside(c.positive, text, words, negated)
	if !positive && matchAny(c.negative, text, words) {
		ctx := correlate(pending, hasText, hasAttachment, false)
		if ctx == nil {
			return unresolved(domain.PolarityNegative, ConfidenceNegative)
		}
		return domain.ClassifiedResponse{ReminderID: ctx.ReminderID, Polarity: domain.PolarityNegative, Action: domain.ActionScheduleFollowUp, Confidence: ConfidenceNegative}
	}

	if positive || hasAttachment {
		ctx := correlate(pending, hasText, hasAttachment, false)
		switch {
		case ctx == nil && positive:
			return unresolved(domain.PolarityPositive, ConfidenceUncorrelated)
		case ctx != nil && ctx.Requirement.Satisfied(hasText, hasAttachment):
			conf := ConfidenceComplete
			if !positive {
				conf = ConfidenceAttachment
			}
			return domain.ClassifiedResponse{ReminderID: ctx.ReminderID, Polarity: domain.PolarityPositive, Action: domain.ActionMarkComplete, Confidence: conf}
		case ctx != nil && positive:
			// Completion claimed without what the reminder asked for.
			return domain.ClassifiedResponse{ReminderID: ctx.ReminderID, Polarity: domain.PolarityPositive, Action: domain.ActionScheduleFollowUp, Confidence: ConfidenceIncomplete}
		}
	}

	ctx := correlate(pending, hasText, hasAttachment, false)
	if ctx == nil {
		return unresolved(domain.PolarityUnclear, ConfidenceUnclear)
	}
	return domain.ClassifiedResponse{ReminderID: ctx.ReminderID, Polarity: domain.PolarityUnclear, Action: domain.ActionScheduleFollowUp, Confidence: ConfidenceUnclear}
}

func unresolved(p domain.Polarity, conf float64) domain.ClassifiedResponse {
	return domain.ClassifiedResponse{Polarity: p, Action: domain.ActionFlagForReview, Confidence: conf}
}

// correlate picks the pending context a reply answers. A single context is
// always the match. Among several, confirmation replies prefer contexts that
// expect a confirmation, then contexts whose requirement the reply fully
// satisfies win, newest dispatch first.
func correlate(pending []domain.PendingContext, hasText, hasAttachment, confirm bool) *domain.PendingContext {
	switch len(pending) {
	case 0:
		return nil
	case 1:
		return &pending[0]
	}

	pool := pending
	if confirm {
		var want []domain.PendingContext
		for _, p := range pending {
			if p.ExpectsConfirmation {
				want = append(want, p)
			}
		}
		if len(want) == 1 {
			return &want[0]
		}
		if len(want) > 1 {
			pool = want
		}
	}

	var fit []domain.PendingContext
	for _, p := range pool {
		if p.Requirement.Satisfied(hasText, hasAttachment) {
			fit = append(fit, p)
		}
	}
	if len(fit) == 0 {
		return nil
	}
	sort.SliceStable(fit, func(i, j int) bool { return fit[i].LastDispatchAt.After(fit[j].LastDispatchAt) })
	return &fit[0]
}

func id(p *domain.PendingContext) string {
	if p == nil {
		return ""
	}
	return p.ReminderID
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "’", "'")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

type phrase struct {
	raw   string
	words []string
}

func compile(list []string) []phrase {
	out := make([]phrase, 0, len(list))
	for _, s := range list {
		s = normalize(s)
		if s == "" {
			continue
		}
		out = append(out, phrase{raw: s, words: tokenize(s)})
	}
	return out
}

func matchAny(list []phrase, text string, words []string) bool {
	for _, p := range list {
		if len(p.words) == 0 {
			if strings.Contains(text, p.raw) {
				return true
			}
			continue
		}
		if containsRun(words, p.words) {
			return true
		}
	}
	return false
}

type span struct{ start, end int }

// spans returns the word ranges covered by any phrase in list.
func spans(list []phrase, words []string) []span {
	var out []span
	for _, p := range list {
		if len(p.words) == 0 {
			continue
		}
		for i := 0; i+len(p.words) <= len(words); i++ {
			if runAt(words, p.words, i) {
				out = append(out, span{i, i + len(p.words)})
			}
		}
	}
	return out
}

// matchOutside is matchAny ignoring word matches that fall entirely inside
// one of the excluded spans.
func matchOutside(list []phrase, text string, words []string, excluded []span) bool {
	for _, p := range list {
		if len(p.words) == 0 {
			if strings.Contains(text, p.raw) {
				return true
			}
			continue
		}
		for i := 0; i+len(p.words) <= len(words); i++ {
			if runAt(words, p.words, i) && !covered(excluded, i, i+len(p.words)) {
				return true
			}
		}
	}
	return false
}

func covered(excluded []span, start, end int) bool {
	for _, s := range excluded {
		if s.start <= start && end <= s.end {
			return true
		}
	}
	return false
}

func runAt(hay, needle []string, i int) bool {
	for j, w := range needle {
		if hay[i+j] != w {
			return false
		}
	}
	return true
}

// containsRun reports whether needle occurs as consecutive words in hay.
func containsRun(hay, needle []string) bool {
	for i := 0; i+len(needle) <= len(hay); i++ {
		if runAt(hay, needle, i) {
			return true
		}
	}
	return false
}
