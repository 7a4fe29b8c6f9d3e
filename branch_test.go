package descargan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectBranch(t *testing.T) {
	tests := []struct {
		name   string
		labels []int
		ill    int
		want   Branch
	}{
		{"all ill", []int{1, 1, 1}, 1, BranchIll},
		{"all healthy", []int{0, 0}, 1, BranchHealthy},
		{"mixed batch falls through to healthy", []int{1, 0}, 1, BranchHealthy},
		{"single ill example", []int{0}, 0, BranchIll},
		{"empty batch", []int{}, 1, BranchIll},
		{"unknown label", []int{1, 7}, 1, BranchHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectBranch(tt.labels, tt.ill))
		})
	}
}

func TestBranchString(t *testing.T) {
	assert.Equal(t, "ill", BranchIll.String())
	assert.Equal(t, "healthy", BranchHealthy.String())
	assert.Equal(t, "branch(9)", Branch(9).String())
}
