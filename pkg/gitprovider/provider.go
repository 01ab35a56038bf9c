package gitprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Kinds of hosted git providers.
const (
	KindADO    = "ado"
	KindGitLab = "gitlab"
)

// ChangeProposal is one reviewable unit of work: a branch, a single commit
// replacing each listed path wholesale, and a pull/merge request into the
// target branch.
type ChangeProposal struct {
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	Changes      map[string][]byte
}

// Provider publishes change proposals against a hosted git repository.
type Provider interface {
	// FetchFile reads a file at the head of the provider's base branch.
	// A missing path is reported through found, not as an error.
	FetchFile(ctx context.Context, path string) (content []byte, found bool, err error)

	// PublishChange resolves the target branch head, creates the source
	// branch there (an already-existing branch counts as success, which makes
	// the call retryable), pushes one commit with all changes and opens a
	// pull request. Returns a human-navigable URL to the opened request.
	PublishChange(ctx context.Context, proposal ChangeProposal) (prURL string, err error)
}

// Config selects and parameterizes a provider variant.
type Config struct {
	Kind    string
	BaseURL string
	Token   string

	// ADO coordinates.
	Organization string
	Project      string
	Repository   string

	// GitLab project id or url-encoded path.
	ProjectID string

	// BaseBranch is the branch FetchFile reads from and proposals target by
	// default.
	BaseBranch string
}

// New builds the provider variant named by cfg.Kind.
func New(cfg Config) (Provider, error) {
	switch cfg.Kind {
	case KindADO:
		return NewADO(cfg), nil
	case KindGitLab:
		return NewGitLab(cfg), nil
	default:
		return nil, fmt.Errorf("unknown git provider kind %q", cfg.Kind)
	}
}

// Publish steps, reported by PublishError so operators can see which part of
// the sequence failed.
type Step string

const (
	StepBranchResolve Step = "branch-resolve"
	StepBranchCreate  Step = "branch-create"
	StepPush          Step = "push"
	StepPRCreate      Step = "pr-create"
)

// ErrBranchNotFound indicates the proposal's target branch does not exist.
var ErrBranchNotFound = errors.New("branch not found")

// PublishError wraps a provider failure with the step it happened in and the
// provider's raw response body.
type PublishError struct {
	Provider string
	Step     Step
	Body     string
	Err      error
}

func (e *PublishError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s publish failed at %s: %v: %s", e.Provider, e.Step, e.Err, e.Body)
	}
	return fmt.Sprintf("%s publish failed at %s: %v", e.Provider, e.Step, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// statusError is an unexpected HTTP status from a provider API, with the raw
// response body kept for diagnosis.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

// publishError builds a PublishError, lifting a raw response body out of a
// statusError when one is present.
func publishError(provider string, step Step, err error) *PublishError {
	pe := &PublishError{Provider: provider, Step: step, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		pe.Body = se.body
	}
	return pe
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// readBody drains a response body for error reporting, capped so a huge error
// page cannot blow up a log line.
func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(b)
}
