// Package console is the interactive text front end of the scan flow.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/plastic-classifier/internal/model"
	"github.com/Brownie44l1/plastic-classifier/internal/preprocess"
	"github.com/Brownie44l1/plastic-classifier/internal/scanner"
	"github.com/Brownie44l1/plastic-classifier/internal/session"
)

const helpText = `commands:
  scan             start scanning (from home)
  classify <path>  classify a JPEG or PNG file
  capture          classify a frame from the camera
  again            scan another image (from a result)
  back             return home (from scan)
  status           show the current screen and last result
  quit             exit`

// Shell drives one session from text commands.
type Shell struct {
	scanner *scanner.Scanner
	session *session.Session
	capture func() ([]byte, error)
	out     io.Writer
}

// New returns a shell on the home screen. capture may be nil when no camera
// is available.
func New(sc *scanner.Scanner, capture func() ([]byte, error), out io.Writer) *Shell {
	return &Shell{scanner: sc, session: session.New(), capture: capture, out: out}
}

// Execute runs one command line. It returns false when the shell should exit.
func (sh *Shell) Execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	var err error
	switch fields[0] {
	case "quit", "exit":
		return false
	case "help", "?":
		fmt.Fprintln(sh.out, helpText)
	case "status":
		sh.printStatus()
	case "scan":
		err = sh.session.StartScan()
		if err == nil {
			sh.PrintScreen()
		}
	case "again":
		err = sh.session.ScanAgain()
		if err == nil {
			sh.PrintScreen()
		}
	case "back":
		err = sh.session.Back()
		if err == nil {
			sh.PrintScreen()
		}
	case "classify":
		if len(fields) < 2 {
			fmt.Fprintln(sh.out, "usage: classify <path>")
			return true
		}
		err = sh.classifyFile(ctx, strings.Join(fields[1:], " "))
	case "capture":
		err = sh.classifyCapture(ctx)
	default:
		fmt.Fprintf(sh.out, "unknown command %q, type help\n", fields[0])
	}

	if err != nil {
		sh.PrintError(err)
	}
	return true
}

func (sh *Shell) classifyFile(ctx context.Context, path string) error {
	if err := sh.requireScan(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return sh.classify(ctx, data)
}

func (sh *Shell) classifyCapture(ctx context.Context) error {
	if err := sh.requireScan(); err != nil {
		return err
	}
	if sh.capture == nil {
		return errors.New("no camera configured")
	}
	data, err := sh.capture()
	if err != nil {
		return err
	}
	return sh.classify(ctx, data)
}

func (sh *Shell) classify(ctx context.Context, data []byte) error {
	out, err := sh.scanner.Scan(ctx, data)
	if err != nil {
		return err
	}
	if err := sh.session.Complete(out); err != nil {
		return err
	}
	sh.printResult(sh.scanner.Describe(out))
	return nil
}

func (sh *Shell) requireScan() error {
	if st := sh.session.State(); st != session.StateScan {
		return errors.Wrapf(session.ErrInvalidTransition, "on %s screen, type scan first", st)
	}
	return nil
}

// PrintScreen shows the header of the current screen.
func (sh *Shell) PrintScreen() {
	switch sh.session.State() {
	case session.StateHome:
		fmt.Fprintln(sh.out, "== Plastic waste classifier ==")
		fmt.Fprintln(sh.out, "Identify plastic waste from a photo. Type scan to begin.")
	case session.StateScan:
		fmt.Fprintln(sh.out, "== Scan ==")
		fmt.Fprintln(sh.out, "classify <path> for a file, capture for the camera, back to go home.")
	case session.StateResult:
		fmt.Fprintln(sh.out, "== Result ==")
	}
}

func (sh *Shell) printStatus() {
	fmt.Fprintf(sh.out, "screen: %s, model: %s\n", sh.session.State(), sh.scanner.ModelStatus())
	if last, ok := sh.session.Last(); ok {
		sh.printResult(sh.scanner.Describe(last))
	}
}

func (sh *Shell) printResult(res scanner.Result) {
	if !res.Actionable() {
		fmt.Fprintln(sh.out, "Image not valid or not recognized.")
		fmt.Fprintf(sh.out, "The model is only %.2f%% confident. This does not look like a known plastic type, please try another image.\n", res.Confidence*100)
		fmt.Fprintln(sh.out, "Type again to scan another image.")
		return
	}
	fmt.Fprintf(sh.out, "Plastic type: %s\n", res.Label)
	fmt.Fprintf(sh.out, "Confidence:   %.2f%%\n", res.Confidence*100)
	if res.Description != nil {
		if res.Description.Code > 0 {
			fmt.Fprintf(sh.out, "Resin code:   %d (%s)\n", res.Description.Code, res.Description.Name)
		}
		fmt.Fprintf(sh.out, "Handling:     %s\n", res.Description.Description)
	}
	fmt.Fprintln(sh.out, "Type again to scan another image.")
}

// PrintError explains err in user terms.
func (sh *Shell) PrintError(err error) {
	switch {
	case errors.Is(err, model.ErrModelUnavailable):
		fmt.Fprintln(sh.out, "The model could not be loaded, classification is unavailable.")
	case errors.Is(err, preprocess.ErrDecode):
		fmt.Fprintln(sh.out, "That file is not a JPEG or PNG image, please choose another.")
	default:
		fmt.Fprintf(sh.out, "error: %v\n", err)
	}
}
