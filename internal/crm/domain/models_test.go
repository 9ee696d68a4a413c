package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageWeight(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		want  float64
	}{
		{"open uses probability", Stage{Status: StageOpen, Probability: 0.25}, 0.25},
		{"won is always one", Stage{Status: StageWon, Probability: 0.1}, 1},
		{"lost is always zero", Stage{Status: StageLost, Probability: 0.9}, 0},
		{"negative clamps to zero", Stage{Status: StageOpen, Probability: -0.5}, 0},
		{"above one clamps", Stage{Status: StageOpen, Probability: 1.5}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.Weight())
		})
	}
}

func TestRole(t *testing.T) {
	assert.True(t, RoleOwner.AtLeast(RoleAdmin))
	assert.False(t, RoleMember.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("ROOT").Valid())
	assert.False(t, RoleMember.Can("products.write"))
}
