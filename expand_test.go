package bidsonym

import (
	"os/user"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ExpandHome("~/data/bids")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "data", "bids"), got)

	got, err = ExpandHome("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(usr.HomeDir), got)

	got, err = ExpandHome("relative/bids")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.True(t, strings.HasSuffix(got, filepath.Join("relative", "bids")))
}

func TestDetermineDelimiter(t *testing.T) {
	assert.Equal(t, '\t', DetermineDelimiter(strings.NewReader("participant_id\tage\tsex\nsub-01\t30\tF\nsub-02\t41\tM\n")))
	assert.Equal(t, ',', DetermineDelimiter(strings.NewReader("participant_id,age,sex\nsub-01,30,F\nsub-02,41,M\n")))

	// BIDS tables are never semicolon separated; fall back to tab
	assert.Equal(t, '\t', DetermineDelimiter(strings.NewReader("participant_id;age;sex\nsub-01;30;F\nsub-02;41;M\n")))
}

func TestIsUnitError(t *testing.T) {
	assert.True(t, IsUnitError(NotFoundError.New("sub-01")))
	assert.True(t, IsUnitError(ExternalToolError.New("pydeface")))
	assert.True(t, IsUnitError(AlreadyStagedError.New("backup")))
	assert.False(t, IsUnitError(ConfigurationError.New("--bet_frac")))
	assert.False(t, IsUnitError(ValidationError.New("NO_T1W")))
}
