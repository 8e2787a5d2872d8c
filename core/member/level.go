package member

// Level is a rung of the credits ladder.
type Level struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Threshold int    `json:"threshold"`
}

// Levels must stay sorted by Threshold.
var Levels = []Level{
	{Number: 1, Title: "Newcomer", Threshold: 0},
	{Number: 2, Title: "Contributor", Threshold: 50},
	{Number: 3, Title: "Active Member", Threshold: 150},
	{Number: 4, Title: "Core Member", Threshold: 300},
	{Number: 5, Title: "Leader", Threshold: 500},
	{Number: 6, Title: "Legend", Threshold: 1000},
}

type Progress struct {
	Level        Level  `json:"level"`
	Next         *Level `json:"next,omitempty"`
	TotalCredits int    `json:"total_credits"`
	ToNext       int    `json:"to_next"`
	Percent      int    `json:"percent"` // 0-100, progress from the current level to the next
}

// ProgressFor places totalCredits on the Levels ladder.
func ProgressFor(totalCredits int) Progress {
	if totalCredits < 0 {
		totalCredits = 0
	}
	idx := 0
	for i, lvl := range Levels {
		if totalCredits >= lvl.Threshold {
			idx = i
		}
	}

	p := Progress{Level: Levels[idx], TotalCredits: totalCredits, Percent: 100}
	if idx+1 < len(Levels) {
		next := Levels[idx+1]
		span := next.Threshold - p.Level.Threshold
		p.Next = &next
		p.ToNext = next.Threshold - totalCredits
		p.Percent = (totalCredits - p.Level.Threshold) * 100 / span
	}
	return p
}
