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

const (
	adoAPIVersion = "7.0"
	zeroObjectID  = "0000000000000000000000000000000000000000"
)

// ADO publishes proposals against an Azure DevOps git repository.
// Authentication is basic auth with an empty user and a personal access
// token.
type ADO struct {
	baseURL      string
	organization string
	project      string
	repository   string
	token        string
	baseBranch   string
	client       *http.Client
}

func NewADO(cfg Config) *ADO {
	return &ADO{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		organization: cfg.Organization,
		project:      cfg.Project,
		repository:   cfg.Repository,
		token:        cfg.Token,
		baseBranch:   cfg.BaseBranch,
		client:       newHTTPClient(),
	}
}

func (a *ADO) apiURL(resource string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", adoAPIVersion)
	return fmt.Sprintf("%s/%s/%s/_apis/git/repositories/%s/%s?%s",
		a.baseURL, url.PathEscape(a.organization), url.PathEscape(a.project),
		url.PathEscape(a.repository), resource, query.Encode())
}

func (a *ADO) do(ctx context.Context, method, rawURL string, body any, accept string) (*http.Response, error) {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, payload)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("", a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return a.client.Do(req)
}

// FetchFile reads a file at the head of the base branch.
func (a *ADO) FetchFile(ctx context.Context, path string) ([]byte, bool, error) {
	query := url.Values{}
	query.Set("path", path)
	query.Set("versionDescriptor.version", a.baseBranch)

	resp, err := a.do(ctx, http.MethodGet, a.apiURL("items", query), nil, "text/plain")
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
		return nil, false, fmt.Errorf("ado fetch %q: %w", path, &statusError{resp.StatusCode, readBody(resp.Body)})
	}
}

func (a *ADO) fetchAtBranch(ctx context.Context, path, branch string) (bool, error) {
	query := url.Values{}
	query.Set("path", path)
	query.Set("versionDescriptor.version", branch)

	resp, err := a.do(ctx, http.MethodGet, a.apiURL("items", query), nil, "text/plain")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

type adoRef struct {
	Name     string `json:"name"`
	ObjectID string `json:"objectId"`
}

type adoRefList struct {
	Count int      `json:"count"`
	Value []adoRef `json:"value"`
}

func (a *ADO) resolveBranch(ctx context.Context, branch string) (string, error) {
	query := url.Values{}
	query.Set("filter", "heads/"+branch)

	resp, err := a.do(ctx, http.MethodGet, a.apiURL("refs", query), nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{resp.StatusCode, readBody(resp.Body)}
	}

	var refs adoRefList
	if err := json.NewDecoder(resp.Body).Decode(&refs); err != nil {
		return "", err
	}
	// the filter is a prefix match, find the exact ref
	for _, ref := range refs.Value {
		if ref.Name == "refs/heads/"+branch {
			return ref.ObjectID, nil
		}
	}
	return "", ErrBranchNotFound
}

type adoRefUpdateResult struct {
	Value []struct {
		Success      bool   `json:"success"`
		UpdateStatus string `json:"updateStatus"`
	} `json:"value"`
}

// createBranch points a new branch at commit. An already-existing branch is
// the desired state for a retried publish, so it is reported as such rather
// than failing.
func (a *ADO) createBranch(ctx context.Context, branch, commit string) (exists bool, err error) {
	body := []map[string]string{{
		"name":        "refs/heads/" + branch,
		"oldObjectId": zeroObjectID,
		"newObjectId": commit,
	}}

	resp, err := a.do(ctx, http.MethodPost, a.apiURL("refs", nil), body, "")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &statusError{resp.StatusCode, readBody(resp.Body)}
	}

	var result adoRefUpdateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}
	if len(result.Value) == 0 {
		return false, fmt.Errorf("empty ref update result")
	}
	update := result.Value[0]
	switch {
	case update.Success:
		return false, nil
	case update.UpdateStatus == "staleObjects":
		// the zero old object id no longer matches, so the ref already exists
		return true, nil
	default:
		// rejected for another reason, e.g. a ref name policy
		return false, fmt.Errorf("ref update rejected: %s", update.UpdateStatus)
	}
}

func (a *ADO) push(ctx context.Context, branch, parent, comment string, changes map[string][]byte, existing map[string]bool) error {
	changeList := make([]map[string]any, 0, len(changes))
	for path, content := range changes {
		changeType := "add"
		if existing[path] {
			changeType = "edit"
		}
		changeList = append(changeList, map[string]any{
			"changeType": changeType,
			"item":       map[string]string{"path": path},
			"newContent": map[string]string{
				"content":     string(content),
				"contentType": "rawtext",
			},
		})
	}

	body := map[string]any{
		"refUpdates": []map[string]string{{
			"name":        "refs/heads/" + branch,
			"oldObjectId": parent,
		}},
		"commits": []map[string]any{{
			"comment": comment,
			"changes": changeList,
		}},
	}

	resp, err := a.do(ctx, http.MethodPost, a.apiURL("pushes", nil), body, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &statusError{resp.StatusCode, readBody(resp.Body)}
	}
	return nil
}

type adoPullRequest struct {
	PullRequestID int `json:"pullRequestId"`
}

func (a *ADO) openPullRequest(ctx context.Context, p ChangeProposal) (string, error) {
	body := map[string]string{
		"sourceRefName": "refs/heads/" + p.SourceBranch,
		"targetRefName": "refs/heads/" + p.TargetBranch,
		"title":         p.Title,
		"description":   p.Description,
	}

	resp, err := a.do(ctx, http.MethodPost, a.apiURL("pullrequests", nil), body, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &statusError{resp.StatusCode, readBody(resp.Body)}
	}

	var pr adoPullRequest
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/_git/%s/pullrequest/%d",
		a.baseURL, url.PathEscape(a.organization), url.PathEscape(a.project),
		url.PathEscape(a.repository), pr.PullRequestID), nil
}

// PublishChange runs the branch/commit/PR sequence. A created branch is left
// behind on a later-step failure; it is harmless and lets a retry with the
// same branch name pick up where it left off.
func (a *ADO) PublishChange(ctx context.Context, p ChangeProposal) (string, error) {
	fail := func(step Step, err error) (string, error) {
		return "", publishError(KindADO, step, err)
	}

	parent, err := a.resolveBranch(ctx, p.TargetBranch)
	if err != nil {
		return fail(StepBranchResolve, err)
	}

	exists, err := a.createBranch(ctx, p.SourceBranch, parent)
	if err != nil {
		return fail(StepBranchCreate, err)
	}
	// the add/edit decision must match the commit the push lands on: a reused
	// branch already carries the previous attempt's files
	checkBranch := p.TargetBranch
	if exists {
		// retried publish: push on top of whatever the branch currently holds
		parent, err = a.resolveBranch(ctx, p.SourceBranch)
		if err != nil {
			return fail(StepBranchCreate, err)
		}
		checkBranch = p.SourceBranch
		log.WithField("branch", p.SourceBranch).Debug("source branch already exists, reusing")
	}

	existing := make(map[string]bool, len(p.Changes))
	for path := range p.Changes {
		found, err := a.fetchAtBranch(ctx, path, checkBranch)
		if err != nil {
			return fail(StepPush, err)
		}
		existing[path] = found
	}

	if err := a.push(ctx, p.SourceBranch, parent, p.Title, p.Changes, existing); err != nil {
		return fail(StepPush, err)
	}

	prURL, err := a.openPullRequest(ctx, p)
	if err != nil {
		return fail(StepPRCreate, err)
	}
	return prURL, nil
}
