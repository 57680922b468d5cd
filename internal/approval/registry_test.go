package approval

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryLookup(t *testing.T) {
	reg := DefaultRegistry()

	adviser, err := reg.Lookup(RoleAdviser)
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindFunding}, adviser.Kinds())
	assert.False(t, adviser.Reviews(KindVenue))

	dean, err := reg.Lookup(RoleDean)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Kind{KindFunding, KindVenue}, dean.Kinds())

	for _, role := range []Role{RoleAdminServices, RoleCFDO, RoleVPAcademic, RoleVPAdministration} {
		entry, err := reg.Lookup(role)
		require.NoError(t, err)
		assert.Equal(t, []Kind{KindVenue}, entry.Kinds(), role)
	}

	afo, err := reg.BindingFor(RoleAFO, KindVenue)
	require.NoError(t, err)
	assert.Equal(t, StageAFO, afo.Stage)
	assert.ElementsMatch(t, []Stage{StageOSAFA, StageCFDO}, afo.Requires)

	afoFunding, err := reg.BindingFor(RoleAFO, KindFunding)
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageOSAFA}, afoFunding.Requires)
}

func TestRegistryUnconfiguredRole(t *testing.T) {
	reg := DefaultRegistry()

	_, err := reg.Lookup(Role("JANITOR"))
	require.ErrorIs(t, err, ErrUnconfiguredRole)
	assert.True(t, IsConfigurationError(err))

	_, err = reg.Lookup(RoleOfficer)
	require.ErrorIs(t, err, ErrUnconfiguredRole)

	_, err = reg.BindingFor(RoleAdviser, KindVenue)
	require.ErrorIs(t, err, ErrRoleNotInChain)
	assert.True(t, IsConfigurationError(err))

	_, err = reg.Chain(Kind("CATERING"))
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistryOwnerAndRoles(t *testing.T) {
	reg := DefaultRegistry()

	role, ok := reg.Owner(KindVenue, StageCFDO)
	require.True(t, ok)
	assert.Equal(t, RoleCFDO, role)

	_, ok = reg.Owner(KindFunding, StageCFDO)
	assert.False(t, ok)

	assert.Len(t, reg.Roles(), 8)
	assert.False(t, IsConfigurationError(ErrNotReady))
}

func TestNewRegistryRejectsInconsistentTables(t *testing.T) {
	chains := map[Kind][]Stage{KindFunding: {StageAdviser, StageDean}}

	cases := []struct {
		name    string
		entries []Entry
		chains  map[Kind][]Stage
	}{
		{
			name: "predecessor after stage",
			entries: []Entry{
				{Role: RoleAdviser, Funding: &Binding{Stage: StageAdviser, Requires: []Stage{StageDean}}},
				{Role: RoleDean, Funding: &Binding{Stage: StageDean}},
			},
			chains: chains,
		},
		{
			name: "stage without owner",
			entries: []Entry{
				{Role: RoleAdviser, Funding: &Binding{Stage: StageAdviser}},
			},
			chains: chains,
		},
		{
			name: "stage outside chain",
			entries: []Entry{
				{Role: RoleAdviser, Funding: &Binding{Stage: StageAdviser}},
				{Role: RoleDean, Funding: &Binding{Stage: StageDean, Requires: []Stage{StageAdviser}}},
				{Role: RoleCFDO, Funding: &Binding{Stage: StageCFDO}},
			},
			chains: chains,
		},
		{
			name: "duplicate role",
			entries: []Entry{
				{Role: RoleAdviser, Funding: &Binding{Stage: StageAdviser}},
				{Role: RoleAdviser, Funding: &Binding{Stage: StageDean}},
			},
			chains: chains,
		},
		{
			name: "kind without chain",
			entries: []Entry{
				{Role: RoleAdviser, Funding: &Binding{Stage: StageAdviser}},
				{Role: RoleDean, Funding: &Binding{Stage: StageDean, Requires: []Stage{StageAdviser}}, Venue: &Binding{Stage: StageDean}},
			},
			chains: chains,
		},
		{
			name:    "unknown kind",
			entries: nil,
			chains:  map[Kind][]Stage{Kind("OTHER"): {StageDean}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.entries, tc.chains)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRegistry) || errors.Is(err, ErrUnknownKind))
		})
	}
}
