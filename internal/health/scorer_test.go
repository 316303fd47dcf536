package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/retailops/controlplane/internal/models"
)

func TestGradeForBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  Grade
	}{
		{100, GradeA}, {90, GradeA},
		{89, GradeB}, {75, GradeB},
		{74, GradeC}, {60, GradeC},
		{59, GradeD}, {40, GradeD},
		{39, GradeF}, {0, GradeF},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, gradeFor(c.score), "score=%d", c.score)
	}
}

func TestErrorRateComponentTiers(t *testing.T) {
	assert.Equal(t, 20, errorRateComponent(0))
	assert.Equal(t, 18, errorRateComponent(0.25))
	assert.Equal(t, 15, errorRateComponent(0.75))
	assert.Equal(t, 10, errorRateComponent(2))
	assert.Equal(t, 5, errorRateComponent(4))
	assert.Equal(t, 0, errorRateComponent(10))
}

func TestLatencyComponentTiers(t *testing.T) {
	assert.Equal(t, 15, latencyComponent(0))
	assert.Equal(t, 15, latencyComponent(50))
	assert.Equal(t, 12, latencyComponent(150))
	assert.Equal(t, 8, latencyComponent(300))
	assert.Equal(t, 4, latencyComponent(700))
	assert.Equal(t, 0, latencyComponent(5000))
}

func TestIncidentsComponentDeductsByPriority(t *testing.T) {
	counts := map[models.Priority]int64{
		models.PriorityP1: 1,
		models.PriorityP2: 1,
	}
	// 20 - 10 - 5 = 5
	assert.Equal(t, 5, incidentsComponent(counts))
}

func TestIncidentsComponentNeverGoesBelowZero(t *testing.T) {
	counts := map[models.Priority]int64{models.PriorityP1: 10}
	assert.Equal(t, 0, incidentsComponent(counts))
}

func TestIncidentsComponentNoOpenIncidentsIsFullMarks(t *testing.T) {
	assert.Equal(t, 20, incidentsComponent(map[models.Priority]int64{}))
}

func TestBackupComponentFreshnessTiers(t *testing.T) {
	assert.Equal(t, 0, backupComponent(nil))

	fresh := &models.BackupValidation{ValidatedAt: time.Now().Add(-1 * time.Hour)}
	assert.Equal(t, 10, backupComponent(fresh))

	aDayOld := &models.BackupValidation{ValidatedAt: time.Now().Add(-20 * time.Hour)}
	assert.Equal(t, 7, backupComponent(aDayOld))

	twoDaysOld := &models.BackupValidation{ValidatedAt: time.Now().Add(-36 * time.Hour)}
	assert.Equal(t, 3, backupComponent(twoDaysOld))

	stale := &models.BackupValidation{ValidatedAt: time.Now().Add(-72 * time.Hour)}
	assert.Equal(t, 0, backupComponent(stale))
}
