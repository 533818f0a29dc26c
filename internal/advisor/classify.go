package advisor

import (
	"strings"

	"github.com/erasmolabs/erasmo/internal/session"
)

// VerdictState says whether a query can be answered as asked.
type VerdictState string

// Classification outcomes.
const (
	StateClear     VerdictState = "clear"
	StateAmbiguous VerdictState = "ambiguous"
)

// ReasonCode explains why a query was judged ambiguous.
type ReasonCode string

// Ambiguity reasons.
const (
	ReasonNoSubject               ReasonCode = "no_subject"
	ReasonMultipleInterpretations ReasonCode = "multiple_interpretations"
	ReasonInsufficientContext     ReasonCode = "insufficient_context"
)

// Verdict is the classification result. Questions is populated only when
// State is StateAmbiguous, with one to three targeted questions.
type Verdict struct {
	State     VerdictState
	Reason    ReasonCode
	Questions []string
}

// Classification thresholds.
const (
	// minSubjectWords is the word count below which a query with no
	// conversational context cannot name a subject.
	minSubjectWords = 4
	// broadQueryWords is the word count below which a broad-topic
	// keyword makes the query under-specified.
	broadQueryWords = 8
	// substantialTurnWords is the word count a prior user turn needs
	// to count as having established a subject.
	substantialTurnWords = 4
)

// broadTopics are keywords too generic to act on alone in a short query.
var broadTopics = []string{
	"strategy", "business", "advice", "idea", "ideas",
	"startup", "company", "growth", "management", "plan",
}

// Classifier decides whether a user message is specific enough to answer.
// It is a pure heuristic, no model call involved; the zero value is usable.
type Classifier struct{}

// Classify judges query against the conversation so far. Recent history
// that already established a subject suppresses the ambiguity verdict,
// so follow-ups like "and then what?" stay answerable.
func (Classifier) Classify(query string, history []session.Turn) Verdict {
	words := strings.Fields(strings.ToLower(query))

	if historyHasSubject(history) {
		return Verdict{State: StateClear}
	}

	if len(words) < minSubjectWords {
		return Verdict{
			State:  StateAmbiguous,
			Reason: ReasonNoSubject,
			Questions: []string{
				"What specific situation or decision are you facing?",
				"What outcome would a good answer help you reach?",
			},
		}
	}

	if len(words) < broadQueryWords {
		for _, w := range words {
			if isBroadTopic(w) {
				return Verdict{
					State:  StateAmbiguous,
					Reason: ReasonMultipleInterpretations,
					Questions: []string{
						"Which aspect of " + w + " matters most right now?",
						"What is the context: your team, your product, or the wider organization?",
						"Is this about a decision you must make, or a situation you want to understand?",
					},
				}
			}
		}
	}

	return Verdict{State: StateClear}
}

// InsufficientContext is the fallback verdict used when retrieval finds no
// evidence above threshold for an otherwise clear query.
func (Classifier) InsufficientContext() Verdict {
	return Verdict{
		State:  StateAmbiguous,
		Reason: ReasonInsufficientContext,
		Questions: []string{
			"Could you rephrase the question with more specifics?",
			"Is there background material on this topic that should be ingested first?",
		},
	}
}

func historyHasSubject(history []session.Turn) bool {
	for _, turn := range history {
		if turn.Role != session.RoleUser {
			continue
		}
		if len(strings.Fields(turn.Text)) >= substantialTurnWords {
			return true
		}
	}
	return false
}

func isBroadTopic(word string) bool {
	word = strings.Trim(word, ".,;:!?\"'")
	for _, topic := range broadTopics {
		if word == topic {
			return true
		}
	}
	return false
}
