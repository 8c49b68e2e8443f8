package rgn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegionDerivedSize(t *testing.T) {
	r := Region{S1: 0, S2: 639, Sbin: 2, P1: 0, P2: 479, Pbin: 1}
	require.Equal(t, 320, r.Width())
	require.Equal(t, 480, r.Height())
	require.NoError(t, r.Validate())
}

func TestRegionValidate(t *testing.T) {
	bad := Region{S1: 10, S2: 5, Sbin: 1, P1: 0, P2: 0, Pbin: 1}
	require.Error(t, bad.Validate())

	badBin := Region{S1: 0, S2: 10, Sbin: 0, P1: 0, P2: 10, Pbin: 1}
	require.Error(t, badBin.Validate())
}

func TestRegionUnion(t *testing.T) {
	a := Region{S1: 0, S2: 10, Sbin: 1, P1: 0, P2: 10, Pbin: 1}
	b := Region{S1: 5, S2: 20, Sbin: 1, P1: 2, P2: 30, Pbin: 1}
	u := a.Union(b)
	require.Equal(t, Region{S1: 0, S2: 20, Sbin: 1, P1: 0, P2: 30, Pbin: 1}, u)
}
