package scrape

import "github.com/fabien-chebel/hiorg-cli/hiorg"

// ExtractPersonnelHours gives every active helper of op the operation's
// start and end, ready for hiorg.Client.SetWorkingHours.
func ExtractPersonnelHours(op hiorg.Operation) []hiorg.WorkingHours {
	hours := make([]hiorg.WorkingHours, 0, len(op.Personnel))
	for _, p := range op.Personnel {
		hours = append(hours, hiorg.WorkingHours{
			ID:    p.ID,
			Start: op.Start,
			End:   op.End,
		})
	}
	return hours
}
