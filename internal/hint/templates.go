package hint

// ProblemType names a family of fraction problems with stock hints.
type ProblemType string

const (
	ProblemEquivalent  ProblemType = "equivalent"
	ProblemComparison  ProblemType = "comparison"
	ProblemAddition    ProblemType = "addition"
	ProblemWordProblem ProblemType = "word_problem"
)

var templates = map[ProblemType][]string{
	ProblemEquivalent: {
		"Look at the numerator and denominator. What number can you multiply or divide both by?",
		"Try finding the greatest common factor (GCF) of the numerator and denominator.",
		"Divide both the top and bottom by the same number to simplify.",
	},
	ProblemComparison: {
		"Try converting both fractions to have the same denominator.",
		"Which fraction has more parts when you imagine them visually?",
		"Find a common denominator to make comparison easier.",
	},
	ProblemAddition: {
		"Do the fractions have the same denominator? If not, find a common denominator first.",
		"Once denominators match, add only the numerators.",
		"Keep the denominator the same and simplify if possible.",
	},
	ProblemWordProblem: {
		"What is the question asking you to find?",
		"What information do you have? Write it as fractions.",
		"What operation do you need: addition, subtraction, multiplication, or division?",
	},
}

var genericHints = []string{
	"Break the problem into smaller steps.",
	"Try drawing a picture to visualize the problem.",
	"Check your work by working backwards.",
}

// Templates returns stock hints for a problem type, or generic hints for an
// unknown type. The returned slice is a copy.
func Templates(pt ProblemType) []string {
	hints, ok := templates[pt]
	if !ok {
		hints = genericHints
	}
	return append([]string(nil), hints...)
}
