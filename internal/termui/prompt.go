// Package termui renders prompts, tables and transfer progress with pterm.
package termui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// Prompter asks questions on the terminal. It satisfies selection.Prompter,
// selection.Notifier and transfer.Confirmer.
type Prompter struct {
	// Out receives tables; defaults to stdout.
	Out io.Writer
}

// NewPrompter returns a Prompter writing to stdout.
func NewPrompter() *Prompter { return &Prompter{Out: os.Stdout} }

// PresentChoices renders rows as a table and reads the raw selection.
func (p *Prompter) PresentChoices(title string, header []string, rows [][]string) (string, error) {
	pterm.DefaultSection.WithWriter(p.out()).Println(title)
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, header)
	data = append(data, rows...)
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(p.out()).WithData(data).Render(); err != nil {
		return "", err
	}
	return pterm.DefaultInteractiveTextInput.
		WithDefaultText("Select numbers (e.g. 1,3 or 2-4), q to quit").
		Show()
}

// Confirm asks a yes/no question, defaulting to no.
func (p *Prompter) Confirm(prompt string) (bool, error) {
	return pterm.DefaultInteractiveConfirm.WithDefaultValue(false).Show(prompt)
}

// ConfirmOverwrite asks before replacing an existing file.
func (p *Prompter) ConfirmOverwrite(path string) (bool, error) {
	return p.Confirm(fmt.Sprintf("File already exists: %s\nOverwrite?", path))
}

// Notify shows a validation message between attempts.
func (p *Prompter) Notify(msg string) {
	pterm.Warning.WithWriter(p.out()).Println(msg)
}

// Ask reads a line of text.
func (p *Prompter) Ask(prompt string) (string, error) {
	s, err := pterm.DefaultInteractiveTextInput.Show(prompt)
	return strings.TrimSpace(s), err
}

// AskSecret reads a line without echoing it.
func (p *Prompter) AskSecret(prompt string) (string, error) {
	s, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show(prompt)
	return strings.TrimSpace(s), err
}

func (p *Prompter) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}
