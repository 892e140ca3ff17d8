package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func TestPolicyVersions(t *testing.T) {
	f := newFixture(t)
	cache := &countingInvalidator{}
	svc := NewPolicies(f.db.Policies(), cache, f.log)
	ctx := context.Background()

	seeded, err := svc.Active(ctx, PolicyTerms)
	require.NoError(t, err)
	assert.Equal(t, "1.0", seeded.Version)

	next, err := svc.Create(ctx, " Terms ", "new terms", "2.0")
	require.NoError(t, err)
	assert.Equal(t, PolicyTerms, next.Type)
	assert.True(t, next.IsActive)
	assert.Equal(t, 1, cache.calls)

	active, err := svc.Active(ctx, "terms")
	require.NoError(t, err)
	assert.Equal(t, next.ID, active.ID)

	old, err := svc.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive, "previous version is kept but inactive")

	privacy, err := svc.Active(ctx, PolicyPrivacy)
	require.NoError(t, err)
	assert.True(t, privacy.IsActive, "other types are untouched")

	t.Run("reactivate older version", func(t *testing.T) {
		on := true
		_, err := svc.Update(ctx, seeded.ID, UpdatePolicyInput{IsActive: &on})
		require.NoError(t, err)

		active, err := svc.Active(ctx, PolicyTerms)
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, active.ID)

		newer, err := svc.Get(ctx, next.ID)
		require.NoError(t, err)
		assert.False(t, newer.IsActive)
	})
}

func TestPolicyDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.policies.Create(ctx, "cookies", "we use cookies", "")
	require.NoError(t, err)
	assert.Equal(t, "1.0", p.Version)

	_, err = f.policies.Create(ctx, "", "content", "1.0")
	requireKind(t, err, KindValidation)

	_, err = f.policies.Create(ctx, "terms", "  ", "1.0")
	requireKind(t, err, KindValidation)

	blank := ""
	_, err = f.policies.Update(ctx, p.ID, UpdatePolicyInput{Content: &blank})
	requireKind(t, err, KindValidation)

	_, err = f.policies.Active(ctx, "refunds")
	requireKind(t, err, KindNotFound)

	require.NoError(t, f.policies.Delete(ctx, p.ID))
	requireKind(t, f.policies.Delete(ctx, p.ID), KindNotFound)
}
