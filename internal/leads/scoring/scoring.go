// Package scoring computes the initial lead score from contact and budget
// signals. The score is a 0-100 heuristic, not a prediction; it exists so
// lists and the search index can rank fresh leads before any human has
// touched them.
package scoring

import "strings"

// freeMailDomains are consumer mail providers. A reachable address on a
// company domain scores higher than a personal one.
var freeMailDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"icloud.com":     {},
	"aol.com":        {},
	"proton.me":      {},
	"protonmail.com": {},
}

// seniorTitles mark decision makers.
var seniorTitles = []string{
	"ceo", "cto", "cfo", "coo", "founder", "co-founder",
	"owner", "director", "managing director", "president",
	"partner", "principal",
}

// Input carries the signals the heuristic reads.
type Input struct {
	Phone        string
	Email        string
	BudgetAmount float64
	Occupation   string
}

// Score computes the initial lead score:
//
//	base                 50
//	phone present       +10
//	business email      +15
//	budget >= 500000    +20  (>= 100000 +15, >= 25000 +10, > 0 +5)
//	senior occupation   +10
//
// clamped to [0, 100].
func Score(in Input) int {
	score := 50

	if strings.TrimSpace(in.Phone) != "" {
		score += 10
	}
	if isBusinessEmail(in.Email) {
		score += 15
	}
	score += budgetPoints(in.BudgetAmount)
	if isSeniorOccupation(in.Occupation) {
		score += 10
	}

	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

func budgetPoints(amount float64) int {
	switch {
	case amount >= 500000:
		return 20
	case amount >= 100000:
		return 15
	case amount >= 25000:
		return 10
	case amount > 0:
		return 5
	}
	return 0
}

func isBusinessEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	_, free := freeMailDomains[domain]
	return !free
}

func isSeniorOccupation(occupation string) bool {
	normalized := strings.ToLower(strings.TrimSpace(occupation))
	if normalized == "" {
		return false
	}
	for _, title := range seniorTitles {
		if normalized == title || strings.Contains(normalized, title) {
			return true
		}
	}
	return false
}
