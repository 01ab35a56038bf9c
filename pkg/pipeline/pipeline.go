package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/flagforge/flagforge/pkg/gitprovider"
	"github.com/flagforge/flagforge/pkg/model"
	"github.com/flagforge/flagforge/pkg/notifier"
	"github.com/flagforge/flagforge/pkg/registry"
	"github.com/flagforge/flagforge/pkg/store"
)

// Action is the requested mutation of a flag key.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Request is one proposed edit of a single flag.
type Request struct {
	Project string
	Key     string
	Action  Action

	// Config is the desired configuration. Ignored for deletes.
	Config *model.FlagConfig

	// NewKey renames the flag on update.
	NewKey string

	// Propose routes the edit through a git integration instead of writing
	// directly. IntegrationID selects one; empty means the tenant default.
	Propose       bool
	IntegrationID string

	Title       string
	Description string
}

// Result of a successful publish. PRURL and Branch are set only for
// proposals.
type Result struct {
	PRURL  string `json:"prURL,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// Pipeline turns a validated flag edit into either a direct store write or a
// pull-request proposal, and signals the relay on direct writes.
type Pipeline struct {
	store    *store.Store
	registry *registry.Registry
	relay    *notifier.RelayProxy

	// newProvider is swapped in tests.
	newProvider func(gitprovider.Config) (gitprovider.Provider, error)
	now         func() time.Time
}

func New(s *store.Store, r *registry.Registry, relay *notifier.RelayProxy) *Pipeline {
	return &Pipeline{
		store:       s,
		registry:    r,
		relay:       relay,
		newProvider: gitprovider.New,
		now:         time.Now,
	}
}

// Apply runs the full publish sequence: load, mutate in memory, validate,
// then either write directly or open a proposal. Exactly one of the two paths
// runs; there is no transaction spanning both.
func (p *Pipeline) Apply(ctx context.Context, req Request) (*Result, error) {
	flags, exists, err := p.store.Read(req.Project)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Resource: "project", Name: req.Project}
	}

	key, err := p.mutate(flags, req)
	if err != nil {
		return nil, err
	}

	if req.Action != ActionDelete {
		if ok, violations := flags[key].Validate(); !ok {
			return nil, &ValidationError{Key: key, Violations: violations}
		}
	}

	if req.Propose {
		return p.propose(ctx, req, flags)
	}

	if err := p.store.Write(req.Project, flags); err != nil {
		return nil, err
	}

	// best-effort cache refresh, never blocks or fails the publish
	p.relay.RefreshAsync()

	log.WithFields(log.Fields{
		"project": req.Project,
		"flag":    key,
		"action":  req.Action,
	}).Info("flag change written")
	return &Result{}, nil
}

// mutate applies the requested edit to the in-memory map and returns the key
// the surviving flag lives under.
func (p *Pipeline) mutate(flags map[string]*model.FlagConfig, req Request) (string, error) {
	switch req.Action {
	case ActionCreate:
		if _, ok := flags[req.Key]; ok {
			return "", &ConflictError{Key: req.Key, Reason: "already exists"}
		}
		flags[req.Key] = req.Config
		return req.Key, nil

	case ActionUpdate:
		if _, ok := flags[req.Key]; !ok {
			return "", &NotFoundError{Resource: "flag", Name: req.Key}
		}
		key := req.Key
		if req.NewKey != "" && req.NewKey != req.Key {
			if _, ok := flags[req.NewKey]; ok {
				return "", &ConflictError{Key: req.NewKey, Reason: "rename target already exists"}
			}
			delete(flags, req.Key)
			key = req.NewKey
		}
		flags[key] = req.Config
		return key, nil

	case ActionDelete:
		if _, ok := flags[req.Key]; !ok {
			return "", &NotFoundError{Resource: "flag", Name: req.Key}
		}
		delete(flags, req.Key)
		return req.Key, nil

	default:
		return "", fmt.Errorf("unknown action %q", req.Action)
	}
}

// propose serializes the project map and opens a pull request through the
// selected git integration. The underlying file is untouched until the
// request is merged externally, so no relay refresh is fired here.
func (p *Pipeline) propose(ctx context.Context, req Request, flags map[string]*model.FlagConfig) (*Result, error) {
	integration, err := p.integration(req.IntegrationID)
	if err != nil {
		return nil, err
	}

	content, err := store.Encode(flags)
	if err != nil {
		return nil, err
	}

	provider, err := p.newProvider(providerConfig(integration))
	if err != nil {
		return nil, err
	}

	// the timestamp keeps concurrent proposals on the same flag from
	// colliding on a branch name
	branch := fmt.Sprintf("flag/%s/%s-%d", req.Project, req.Key, p.now().Unix())

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s flag %s in project %s", req.Action, req.Key, req.Project)
	}

	prURL, err := provider.PublishChange(ctx, gitprovider.ChangeProposal{
		Title:        title,
		Description:  req.Description,
		SourceBranch: branch,
		TargetBranch: integration.BaseBranch,
		Changes: map[string][]byte{
			integration.FlagsFilePath: content,
		},
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"project": req.Project,
		"flag":    req.Key,
		"branch":  branch,
		"pr":      prURL,
	}).Info("flag change proposed")
	return &Result{PRURL: prURL, Branch: branch}, nil
}

func (p *Pipeline) integration(id string) (registry.GitIntegration, error) {
	if id != "" {
		integration, ok := p.registry.Integration(id)
		if !ok {
			return registry.GitIntegration{}, &NotFoundError{Resource: "integration", Name: id}
		}
		return integration, nil
	}
	integration, ok := p.registry.DefaultIntegration()
	if !ok {
		return registry.GitIntegration{}, ErrNoIntegration
	}
	return integration, nil
}

func providerConfig(g registry.GitIntegration) gitprovider.Config {
	return gitprovider.Config{
		Kind:         g.Provider,
		BaseURL:      g.Endpoint,
		Token:        g.Token,
		Organization: g.Organization,
		Project:      g.Project,
		Repository:   g.Repository,
		ProjectID:    g.ProjectID,
		BaseBranch:   g.BaseBranch,
	}
}
