package speechtotext

import (
	"fmt"
	"strings"
)

// Word is a single finalized word of user speech. Start and End are seconds
// on the recognizer's stream clock, which starts with the first audio sent.
type Word struct {
	Text       string
	Start      float64
	End        float64
	Confidence float64
}

func (w Word) IsBlank() bool { return strings.TrimSpace(w.Text) == "" }

func (w Word) String() string {
	return fmt.Sprintf("%s (%.2f-%.2f)", w.Text, w.Start, w.End)
}
