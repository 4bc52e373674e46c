package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/compositor/internal/config"
)

func TestParsePairs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		values  []string
		want    config.Mapping
		wantErr bool
	}{
		{name: "empty", values: nil, want: nil},
		{name: "keeps order", values: []string{"b=2", "a=1"}, want: config.Mapping{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}},
		{name: "value may contain equals", values: []string{"q=a=b"}, want: config.Mapping{{Key: "q", Value: "a=b"}}},
		{name: "empty value", values: []string{"x="}, want: config.Mapping{{Key: "x", Value: ""}}},
		{name: "later value wins", values: []string{"x=1", "y=2", "x=3"}, want: config.Mapping{{Key: "x", Value: "3"}, {Key: "y", Value: "2"}}},
		{name: "key is trimmed", values: []string{" x =1"}, want: config.Mapping{{Key: "x", Value: "1"}}},
		{name: "missing separator", values: []string{"x"}, wantErr: true},
		{name: "missing key", values: []string{"=1"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parsePairs("input", tt.values)
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "--input")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRunOptions(t *testing.T) {
	t.Parallel()

	require.ErrorContains(t, validateRunOptions(runOptions{Path: "  "}), "required")
	require.ErrorContains(t, validateRunOptions(runOptions{Path: "/path/does/not/exist"}), "does not exist")
	require.NoError(t, validateRunOptions(runOptions{Path: t.TempDir()}))
}
