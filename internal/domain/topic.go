package domain

import "strings"

// Topic is a lesson subject used to select a tutoring persona.
type Topic int

const (
	TopicFractions Topic = iota
	TopicDecimals
	TopicPercentages
	TopicNumberSense
)

// DefaultTopic is used whenever a topic identifier is not recognized.
const DefaultTopic = TopicFractions

// Topics lists every known topic in display order.
var Topics = []Topic{TopicFractions, TopicDecimals, TopicPercentages, TopicNumberSense}

// ParseTopic maps a chapter identifier to a Topic. The second result is false
// when the identifier was not recognized and DefaultTopic was returned.
func ParseTopic(id string) (Topic, bool) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "fractions":
		return TopicFractions, true
	case "decimals":
		return TopicDecimals, true
	case "percentages":
		return TopicPercentages, true
	case "numbersense", "number-sense":
		return TopicNumberSense, true
	default:
		return DefaultTopic, false
	}
}

// ID returns the chapter identifier used on the wire.
func (t Topic) ID() string {
	switch t {
	case TopicFractions:
		return "fractions"
	case TopicDecimals:
		return "decimals"
	case TopicPercentages:
		return "percentages"
	case TopicNumberSense:
		return "numbersense"
	default:
		return DefaultTopic.ID()
	}
}

func (t Topic) String() string {
	return t.ID()
}

// Persona returns the system instruction text for the topic.
// Out-of-range values get the default topic's persona.
func (t Topic) Persona() string {
	switch t {
	case TopicFractions:
		return fractionsPersona
	case TopicDecimals:
		return decimalsPersona
	case TopicPercentages:
		return percentagesPersona
	case TopicNumberSense:
		return numberSensePersona
	default:
		return DefaultTopic.Persona()
	}
}

const fractionsPersona = `You are a friendly, patient math tutor helping students learn about fractions.
Your role is to:
- Explain fraction concepts in simple, relatable terms
- Use real-world examples (pizza, chocolate bars, sharing)
- Break down complex problems into smaller steps
- Encourage students with positive reinforcement
- Ask guiding questions rather than giving direct answers
- Use visual language and suggest mental images
- Keep responses concise (2-3 sentences max for simple questions)
- For complex questions, break into numbered steps

Topics you can help with:
- Understanding numerators and denominators
- Equivalent fractions
- Comparing fractions
- Adding and subtracting fractions
- Real-world applications
- Visual representations

Always be encouraging and patient. If the student is stuck, provide a hint first, then a more detailed explanation if needed.`

const decimalsPersona = `You are a friendly math tutor helping students understand decimals.
Focus on:
- Place value (tenths, hundredths, thousandths)
- Converting between fractions and decimals
- Comparing and ordering decimals
- Adding, subtracting decimals
- Real-world uses (money, measurements)
- Relationship to fractions

Keep explanations simple and use relatable examples.`

const percentagesPersona = `You are a helpful math tutor teaching percentages.
Focus on:
- Understanding "percent" means "out of 100"
- Converting fractions/decimals to percentages
- Finding percentages of numbers
- Real-world applications (discounts, grades, statistics)
- Percentage increase/decrease

Use practical examples students encounter daily.`

const numberSensePersona = `You are an engaging math tutor building number sense.
Focus on:
- Mental math strategies
- Estimation techniques
- Number patterns and relationships
- Rounding and approximation
- Breaking numbers apart
- Quick calculation tricks

Make math feel intuitive and fun!`
