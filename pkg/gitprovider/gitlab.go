package gitprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GitLab publishes proposals against a GitLab project through the v4 API.
// Authentication is a bearer token.
type GitLab struct {
	baseURL    string
	projectID  string
	token      string
	baseBranch string
	client     *http.Client
}

func NewGitLab(cfg Config) *GitLab {
	return &GitLab{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		projectID:  cfg.ProjectID,
		token:      cfg.Token,
		baseBranch: cfg.BaseBranch,
		client:     newHTTPClient(),
	}
}

func (g *GitLab) apiURL(resource string, query url.Values) string {
	u := fmt.Sprintf("%s/api/v4/projects/%s/%s", g.baseURL, url.PathEscape(g.projectID), resource)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (g *GitLab) do(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.client.Do(req)
}

// FetchFile reads a file at the head of the base branch.
func (g *GitLab) FetchFile(ctx context.Context, path string) ([]byte, bool, error) {
	return g.fetchAtBranch(ctx, path, g.baseBranch)
}

func (g *GitLab) fetchAtBranch(ctx context.Context, path, branch string) ([]byte, bool, error) {
	query := url.Values{}
	query.Set("ref", branch)
	rawURL := g.apiURL("repository/files/"+url.PathEscape(strings.TrimPrefix(path, "/"))+"/raw", query)

	resp, err := g.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		return raw, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("gitlab fetch %q: %w", path, &statusError{resp.StatusCode, readBody(resp.Body)})
	}
}

type gitlabBranch struct {
	Name   string `json:"name"`
	Commit struct {
		ID string `json:"id"`
	} `json:"commit"`
}

func (g *GitLab) resolveBranch(ctx context.Context, branch string) (string, error) {
	resp, err := g.do(ctx, http.MethodGet, g.apiURL("repository/branches/"+url.PathEscape(branch), nil), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var b gitlabBranch
		if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
			return "", err
		}
		return b.Commit.ID, nil
	case http.StatusNotFound:
		return "", ErrBranchNotFound
	default:
		return "", &statusError{resp.StatusCode, readBody(resp.Body)}
	}
}

// createBranch points a new branch at ref. GitLab rejects an existing branch
// with a 400; for a retried publish that is the desired state, so it is
// reported as exists rather than failing.
func (g *GitLab) createBranch(ctx context.Context, branch, ref string) (exists bool, err error) {
	query := url.Values{}
	query.Set("branch", branch)
	query.Set("ref", ref)

	resp, err := g.do(ctx, http.MethodPost, g.apiURL("repository/branches", query), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return false, nil
	case http.StatusBadRequest, http.StatusConflict:
		body := readBody(resp.Body)
		if strings.Contains(strings.ToLower(body), "already exists") {
			return true, nil
		}
		return false, &statusError{resp.StatusCode, body}
	default:
		return false, &statusError{resp.StatusCode, readBody(resp.Body)}
	}
}

func (g *GitLab) push(ctx context.Context, branch, message string, changes map[string][]byte, existing map[string]bool) error {
	actions := make([]map[string]string, 0, len(changes))
	for path, content := range changes {
		action := "create"
		if existing[path] {
			action = "update"
		}
		actions = append(actions, map[string]string{
			"action":    action,
			"file_path": strings.TrimPrefix(path, "/"),
			"content":   string(content),
		})
	}

	body := map[string]any{
		"branch":         branch,
		"commit_message": message,
		"actions":        actions,
	}

	resp, err := g.do(ctx, http.MethodPost, g.apiURL("repository/commits", nil), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return &statusError{resp.StatusCode, readBody(resp.Body)}
	}
	return nil
}

type gitlabMergeRequest struct {
	IID    int    `json:"iid"`
	WebURL string `json:"web_url"`
}

func (g *GitLab) openMergeRequest(ctx context.Context, p ChangeProposal) (string, error) {
	body := map[string]string{
		"source_branch": p.SourceBranch,
		"target_branch": p.TargetBranch,
		"title":         p.Title,
		"description":   p.Description,
	}

	resp, err := g.do(ctx, http.MethodPost, g.apiURL("merge_requests", nil), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", &statusError{resp.StatusCode, readBody(resp.Body)}
	}

	var mr gitlabMergeRequest
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return "", err
	}
	return mr.WebURL, nil
}

// PublishChange runs the branch/commit/MR sequence. As with the ADO variant,
// a branch left behind by a later-step failure is harmless and a retry with
// the same branch name succeeds on the creation step.
func (g *GitLab) PublishChange(ctx context.Context, p ChangeProposal) (string, error) {
	fail := func(step Step, err error) (string, error) {
		return "", publishError(KindGitLab, step, err)
	}

	head, err := g.resolveBranch(ctx, p.TargetBranch)
	if err != nil {
		return fail(StepBranchResolve, err)
	}

	exists, err := g.createBranch(ctx, p.SourceBranch, head)
	if err != nil {
		return fail(StepBranchCreate, err)
	}
	// the create/update decision must match the commit the push lands on: a
	// reused branch already carries the previous attempt's files
	checkBranch := p.TargetBranch
	if exists {
		checkBranch = p.SourceBranch
		log.WithField("branch", p.SourceBranch).Debug("source branch already exists, reusing")
	}

	existing := make(map[string]bool, len(p.Changes))
	for path := range p.Changes {
		_, found, err := g.fetchAtBranch(ctx, path, checkBranch)
		if err != nil {
			return fail(StepPush, err)
		}
		existing[path] = found
	}

	if err := g.push(ctx, p.SourceBranch, p.Title, p.Changes, existing); err != nil {
		return fail(StepPush, err)
	}

	prURL, err := g.openMergeRequest(ctx, p)
	if err != nil {
		return fail(StepPRCreate, err)
	}
	return prURL, nil
}
