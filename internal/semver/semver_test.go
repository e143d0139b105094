package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTripsString(t *testing.T) {
	v, err := Parse("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v.String())
}

func TestParse_WithPrerelease(t *testing.T) {
	v, err := Parse("1.2.3-beta.1")
	require.NoError(t, err)
	assert.Equal(t, "beta.1", v.Prerelease)
}

func TestParse_RejectsMalformed(t *testing.T) {
	_, err := Parse("1.2")
	assert.Error(t, err)
}

func TestCompare_OrdersReleaseAfterPrerelease(t *testing.T) {
	release, _ := Parse("1.0.0")
	pre, _ := Parse("1.0.0-rc.1")
	assert.Equal(t, 1, release.Compare(pre))
	assert.Equal(t, -1, pre.Compare(release))
}

func TestConstraint_ExactMatch(t *testing.T) {
	c, err := ParseConstraint("=1.2.3")
	require.NoError(t, err)
	v, _ := Parse("1.2.3")
	assert.True(t, c.Matches(v))
	other, _ := Parse("1.2.4")
	assert.False(t, c.Matches(other))
}

func TestConstraint_BoundsCombinedWithComma(t *testing.T) {
	c, err := ParseConstraint(">=1.2.0, <2.0.0")
	require.NoError(t, err)
	inRange, _ := Parse("1.5.0")
	assert.True(t, c.Matches(inRange))
	tooHigh, _ := Parse("2.0.0")
	assert.False(t, c.Matches(tooHigh))
	tooLow, _ := Parse("1.1.0")
	assert.False(t, c.Matches(tooLow))
}

func TestConstraint_CaretAllowsMinorAndPatchBumps(t *testing.T) {
	c, err := ParseConstraint("^1.2.3")
	require.NoError(t, err)
	assert.True(t, c.Matches(mustParse("1.9.0")))
	assert.False(t, c.Matches(mustParse("2.0.0")))
	assert.False(t, c.Matches(mustParse("1.2.2")))
}

func TestConstraint_CaretZeroMajorIsStricter(t *testing.T) {
	c, err := ParseConstraint("^0.2.3")
	require.NoError(t, err)
	assert.True(t, c.Matches(mustParse("0.2.9")))
	assert.False(t, c.Matches(mustParse("0.3.0")))
}

func TestConstraint_TildeAllowsOnlyPatchBumps(t *testing.T) {
	c, err := ParseConstraint("~1.4.2")
	require.NoError(t, err)
	assert.True(t, c.Matches(mustParse("1.4.9")))
	assert.False(t, c.Matches(mustParse("1.5.0")))
}

func TestConstraint_Wildcard(t *testing.T) {
	c, err := ParseConstraint("1.2.*")
	require.NoError(t, err)
	assert.True(t, c.Matches(mustParse("1.2.0")))
	assert.True(t, c.Matches(mustParse("1.2.99")))
	assert.False(t, c.Matches(mustParse("1.3.0")))
}

func mustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}
