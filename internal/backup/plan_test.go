package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanValidateRejectsIncrementalAndUnknownTypes(t *testing.T) {
	base := Plan{ID: "p1", Type: Full, Components: []string{"database"}}

	valid := base
	assert.NoError(t, valid.Validate())

	incremental := base
	incremental.Type = Incremental
	assert.Error(t, incremental.Validate(), "incremental plans are a named but unimplemented type")

	bogus := base
	bogus.Type = PlanType("SNAPSHOT")
	assert.Error(t, bogus.Validate())
}

func TestPlanValidateRequiresIDAndRecognizedComponents(t *testing.T) {
	assert.Error(t, Plan{Type: Full, Components: []string{"database"}}.Validate(), "missing id")
	assert.Error(t, Plan{ID: "p1", Type: Full}.Validate(), "no components")
	assert.Error(t, Plan{ID: "p1", Type: Full, Components: []string{"not-a-component"}}.Validate())
}
