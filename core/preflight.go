package core

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// StepStatus is the outcome of one preflight check.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the lowercase name of the status.
func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Check is one startup check. A failing check that is not Required is
// reported as a warning and does not fail the run.
type Check struct {
	Name     string
	Required bool
	Run      func() (message string, err error)
}

// PreflightStep records the result of a Check.
type PreflightStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// PreflightResult is the outcome of a full Preflight run.
type PreflightResult struct {
	Steps    []PreflightStep
	Passed   int
	Failed   int
	Warnings int
	Duration time.Duration
	Success  bool
}

// Preflight runs startup checks in order and prints a coloured report.
type Preflight struct {
	output       io.Writer
	title        string
	checks       []Check
	showProgress bool
	failFast     bool
}

// NewPreflight creates an empty Preflight writing to stdout.
func NewPreflight(title string) *Preflight {
	return &Preflight{
		output:       os.Stdout,
		title:        title,
		showProgress: true,
	}
}

// WithOutput sets the writer for the report.
func (p *Preflight) WithOutput(w io.Writer) *Preflight {
	p.output = w
	return p
}

// WithShowProgress enables or disables the report.
func (p *Preflight) WithShowProgress(show bool) *Preflight {
	p.showProgress = show
	return p
}

// WithFailFast skips remaining checks after the first required failure.
func (p *Preflight) WithFailFast(failFast bool) *Preflight {
	p.failFast = failFast
	return p
}

// Add appends a check.
func (p *Preflight) Add(check Check) *Preflight {
	p.checks = append(p.checks, check)
	return p
}

// Run executes every check and returns the aggregated result.
func (p *Preflight) Run() PreflightResult {
	start := time.Now()
	steps := make([]PreflightStep, 0, len(p.checks))

	if p.showProgress {
		p.printHeader()
	}

	failed := false
	for _, check := range p.checks {
		if failed && p.failFast {
			step := PreflightStep{Name: check.Name, Status: StepSkipped, Message: "skipped after earlier failure"}
			steps = append(steps, step)
			if p.showProgress {
				p.printStep(step)
			}
			continue
		}

		step := p.runCheck(check)
		if step.Status == StepFailed {
			failed = true
		}
		steps = append(steps, step)
	}

	result := buildPreflightResult(steps, start)
	if p.showProgress {
		p.printSummary(result)
	}
	return result
}

func (p *Preflight) runCheck(check Check) PreflightStep {
	if p.showProgress {
		fmt.Fprintf(p.output, "  ◌ %s...", check.Name)
	}

	begin := time.Now()
	message, err := check.Run()
	step := PreflightStep{
		Name:    check.Name,
		Status:  StepPassed,
		Message: message,
		Error:   err,
		Latency: time.Since(begin),
	}
	if err != nil {
		step.Status = StepWarning
		if check.Required {
			step.Status = StepFailed
		}
	}

	if p.showProgress {
		p.printStep(step)
	}
	return step
}

func buildPreflightResult(steps []PreflightStep, start time.Time) PreflightResult {
	result := PreflightResult{
		Steps:    steps,
		Duration: time.Since(start),
		Success:  true,
	}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.Passed++
		case StepFailed:
			result.Failed++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (p *Preflight) printHeader() {
	fmt.Fprintln(p.output)
	color.New(color.FgCyan, color.Bold).Fprintf(p.output, "━━━ %s ━━━\n", p.title)
	fmt.Fprintln(p.output)
}

func (p *Preflight) printStep(step PreflightStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	default:
		icon, clr = "○", color.New(color.FgHiBlack)
	}

	fmt.Fprintf(p.output, "\r")
	clr.Fprintf(p.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(p.output, " - %s", step.Message)
	}
	fmt.Fprintln(p.output)

	if step.Error != nil && step.Status != StepPassed {
		clr.Fprintf(p.output, "    └─ %s\n", step.Error.Error())
	}
}

func (p *Preflight) printSummary(result PreflightResult) {
	fmt.Fprintln(p.output)
	dim := color.New(color.FgHiBlack)

	if result.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprintf(p.output, "━━━ Ready ")
		dim.Fprintf(p.output, "(%d passed, %d warnings in %v)",
			result.Passed, result.Warnings, result.Duration.Round(time.Millisecond))
		ok.Fprintln(p.output, " ━━━")
	} else {
		bad := color.New(color.FgRed, color.Bold)
		bad.Fprintf(p.output, "━━━ Startup checks failed ")
		dim.Fprintf(p.output, "(%d passed, %d failed)", result.Passed, result.Failed)
		bad.Fprintln(p.output, " ━━━")
	}
	fmt.Fprintln(p.output)
}

// FirstError returns the error of the first failed step, or nil.
func (r PreflightResult) FirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed {
			return step.Error
		}
	}
	return nil
}

// Summary returns a one-line description for logs.
func (r PreflightResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("preflight passed: ")
	} else {
		sb.WriteString("preflight failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d checks passed", r.Passed, len(r.Steps))
	if r.Failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.Failed)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	return sb.String()
}
