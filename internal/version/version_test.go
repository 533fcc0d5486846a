package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestVersionStrings ensures Short and Full return non-empty consistent information.
func TestVersionStrings(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, Short())
	require.Contains(t, Full(), Short())
}

func TestCompare(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.10.0", "1.9.3", 1},
		{"v2.0", "2.0.0", 0},
		{"1.2.3-rc1", "1.2.3", 0},
		{"", "0.0.1", -1},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, Compare(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestNewCommand(t *testing.T) {
	t.Parallel()

	var out strings.Builder

	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, Short()+"\n", out.String())
}
