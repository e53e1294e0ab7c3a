package revert

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/carbocation/pfx"
)

// Confirmer asks whether a planned revert may go ahead.
type Confirmer interface {
	Confirm(plan *Plan) (bool, error)
}

// PromptConfirmer prints the plan to Out and reads one answer line from In.
// Only "y" or "yes", in any case, confirm.
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *PromptConfirmer) Confirm(plan *Plan) (bool, error) {
	unit := "sub-" + plan.Subject
	if plan.Session != "" {
		unit += " ses-" + plan.Session
	}

	fmt.Fprintf(p.out, "About to revert %s:\n", unit)
	fmt.Fprintf(p.out, "  %d processed file(s) will be removed from the dataset\n", len(plan.Remove))
	fmt.Fprintf(p.out, "  %d original file(s) will be restored from %s\n", len(plan.Restores), plan.BackupRoot)
	fmt.Fprintf(p.out, "  %s will be deleted afterwards\n", plan.BackupRoot)
	fmt.Fprint(p.out, "Proceed? [y/N]: ")

	answer, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, pfx.Err(err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Always confirms without asking.
type Always struct{}

func (Always) Confirm(*Plan) (bool, error) { return true, nil }
