package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository"
)

// Policy types served publicly.
const (
	PolicyTerms   = "terms"
	PolicyPrivacy = "privacy"
)

const defaultPolicyVersion = "1.0"

// Invalidator drops cached copies of public policy responses.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Policies manages versioned legal documents.
type Policies struct {
	store PolicyStore
	cache Invalidator
	log   *logrus.Logger
}

func NewPolicies(store PolicyStore, cache Invalidator, log *logrus.Logger) *Policies {
	if log == nil {
		log = logrus.New()
	}
	return &Policies{store: store, cache: cache, log: log}
}

// Active returns the active policy of typ.
func (s *Policies) Active(ctx context.Context, typ string) (*model.Policy, error) {
	p, err := s.store.ActiveByType(ctx, strings.ToLower(strings.TrimSpace(typ)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound(typ + " policy not found")
	}
	if err != nil {
		return nil, internal("load policy failed", err)
	}
	return p, nil
}

func (s *Policies) List(ctx context.Context) ([]model.Policy, error) {
	ps, err := s.store.List(ctx)
	if err != nil {
		return nil, internal("list policies failed", err)
	}
	return ps, nil
}

func (s *Policies) Get(ctx context.Context, id int64) (*model.Policy, error) {
	p, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("policy not found")
	}
	if err != nil {
		return nil, internal("load policy failed", err)
	}
	return p, nil
}

// Create publishes a new version of a policy type. Earlier policies of the
// type are deactivated, never deleted.
func (s *Policies) Create(ctx context.Context, typ, content, version string) (*model.Policy, error) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" {
		return nil, validation("policy type is required", "type")
	}
	if strings.TrimSpace(content) == "" {
		return nil, validation("policy content is required", "content")
	}
	version = strings.TrimSpace(version)
	if version == "" {
		version = defaultPolicyVersion
	}
	p := &model.Policy{Type: typ, Content: content, Version: version}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, internal("create policy failed", err)
	}
	s.log.WithFields(logrus.Fields{"policy_id": p.ID, "type": typ, "version": version}).Info("policy published")
	s.invalidate(ctx)
	return p, nil
}

type UpdatePolicyInput struct {
	Content  *string
	Version  *string
	IsActive *bool
}

func (s *Policies) Update(ctx context.Context, id int64, in UpdatePolicyInput) (*model.Policy, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return nil, validation("policy content is required", "content")
		}
		p.Content = *in.Content
	}
	if in.Version != nil && strings.TrimSpace(*in.Version) != "" {
		p.Version = strings.TrimSpace(*in.Version)
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, internal("update policy failed", err)
	}
	s.invalidate(ctx)
	return p, nil
}

func (s *Policies) Delete(ctx context.Context, id int64) error {
	err := s.store.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("policy not found")
	}
	if err != nil {
		return internal("delete policy failed", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Policies) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("policy cache invalidation failed")
	}
}
